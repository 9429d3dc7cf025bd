package cryptopay

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status        PaymentStatus
		paid, partial bool
		final         bool
	}{
		{StatusPending, false, false, false},
		{StatusPartiallyPaid, false, true, false},
		{StatusConfirmed, true, false, true},
		{StatusExpired, false, false, true},
		{StatusFailed, false, false, true},
		{StatusCancelled, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := &Payment{Status: tt.status}
			assert.Equal(t, tt.paid, IsPaid(p))
			assert.Equal(t, tt.partial, IsPartiallyPaid(p))
			assert.Equal(t, tt.final, IsFinal(p))
			assert.Equal(t, tt.final, p.IsFinal())
		})
	}
}

func TestStatusPredicatesNil(t *testing.T) {
	assert.False(t, IsPaid(nil))
	assert.False(t, IsPartiallyPaid(nil))
	assert.False(t, IsFinal(nil))
	assert.False(t, IsExpired(nil, time.Now()))
	assert.Zero(t, Progress(nil))
}

func TestStatusPolicyPartialFinal(t *testing.T) {
	policy := StatusPolicy{PartialPaymentIsFinal: true}
	assert.True(t, policy.IsFinal(&Payment{Status: StatusPartiallyPaid}))
	assert.False(t, policy.IsFinal(&Payment{Status: StatusPending}))
	assert.False(t, DefaultStatusPolicy.IsFinal(&Payment{Status: StatusPartiallyPaid}))
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		status    PaymentStatus
		expiresAt time.Time
		want      bool
	}{
		{"reported expired", StatusExpired, time.Time{}, true},
		{"pending before expiry", StatusPending, now.Add(time.Minute), false},
		{"pending at expiry", StatusPending, now, true},
		{"pending after expiry", StatusPending, now.Add(-time.Minute), true},
		{"partial after expiry", StatusPartiallyPaid, now.Add(-time.Minute), true},
		{"pending without expiry", StatusPending, time.Time{}, false},
		{"confirmed after expiry", StatusConfirmed, now.Add(-time.Minute), false},
		{"failed after expiry", StatusFailed, now.Add(-time.Minute), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Payment{Status: tt.status, ExpiresAt: tt.expiresAt}
			assert.Equal(t, tt.want, IsExpired(p, now))
		})
	}
}

func TestProgress(t *testing.T) {
	amount := decimal.NewFromInt(20)
	assert.Equal(t, 1.0, Progress(&Payment{Status: StatusConfirmed, Amount: amount}))
	assert.Equal(t, 0.0, Progress(&Payment{Status: StatusPending, Amount: amount}))
	assert.InDelta(t, 0.25, Progress(&Payment{Status: StatusPartiallyPaid, Amount: amount, PaidAmount: decimal.NewFromInt(5)}), 1e-9)
	assert.Equal(t, 1.0, Progress(&Payment{Status: StatusPartiallyPaid, Amount: amount, PaidAmount: decimal.NewFromInt(30)}))
	assert.Equal(t, 0.0, Progress(&Payment{Status: StatusPartiallyPaid, PaidAmount: decimal.NewFromInt(5)}))
}
