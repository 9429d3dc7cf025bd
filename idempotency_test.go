package cryptopay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCallOptions(t *testing.T) {
	key, err := resolveCallOptions(nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	key, err = resolveCallOptions([]CallOption{WithIdempotencyKey("order-1")})
	require.NoError(t, err)
	assert.Equal(t, "order-1", key)

	// Keys are sent unmodified
	key, err = resolveCallOptions([]CallOption{WithIdempotencyKey(" padded ")})
	require.NoError(t, err)
	assert.Equal(t, " padded ", key)
}

func TestValidateIdempotencyKey(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"simple", "order-42", true},
		{"max length", strings.Repeat("k", MaxIdempotencyKeyLength), true},
		{"empty", "", false},
		{"whitespace", " \t ", false},
		{"too long", strings.Repeat("k", MaxIdempotencyKeyLength+1), false},
		{"newline", "order\n42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdempotencyKey(tt.key)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrValidation)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "idempotencyKey", e.Field)
		})
	}
}

func TestNewIdempotencyKey(t *testing.T) {
	a, b := NewIdempotencyKey(), NewIdempotencyKey()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "idem_"))
	assert.Len(t, a, len("idem_")+32)
	assert.NoError(t, ValidateIdempotencyKey(a))
}
