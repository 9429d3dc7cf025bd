package cryptopay

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("creating payment: %w", &Error{Kind: KindRateLimited, Message: "slow down"})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrServer)
	assert.Equal(t, KindRateLimited, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestConfigurationIsValidationButNotSignature(t *testing.T) {
	err := newConfigurationError("webhookSecret", "missing")
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrSignatureInvalid)

	// The reverse does not hold
	assert.NotErrorIs(t, newValidationError("amount", "bad", nil), ErrConfiguration)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindValidation, Message: "amount must be greater than zero", Field: "amount"}
	assert.Equal(t, "cryptopay: validation_error: amount must be greater than zero (field amount)", err.Error())

	wrapped := NewError(KindCancelled, "wait cancelled", context.Canceled)
	assert.Equal(t, "cryptopay: cancelled: wait cancelled: context canceled", wrapped.Error())
	assert.ErrorIs(t, wrapped, context.Canceled)
}

func TestKindOfForeignErrors(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.False(t, IsRetryable(errors.New("plain")))
	for _, kind := range []ErrorKind{KindAuthentication, KindValidation, KindPaymentFailed, KindCancelled, KindNotFound} {
		assert.False(t, IsRetryable(NewError(kind, "x", nil)), kind)
	}
}
