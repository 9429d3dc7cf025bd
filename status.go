package cryptopay

import "time"

// ============================================================================
// Payment state classification
//
// The service performs all transitions:
//
//	PENDING -> CONFIRMED
//	PENDING -> PARTIALLY_PAID -> CONFIRMED
//	PENDING -> EXPIRED | FAILED | CANCELLED
//
// The functions below only classify a snapshot. They are pure: the result depends on the
// snapshot and, for IsExpired, the supplied current time.
// ============================================================================

// IsPaid reports whether the payment is confirmed
func IsPaid(p *Payment) bool {
	return p != nil && p.Status == StatusConfirmed
}

// IsPartiallyPaid reports whether the payment has received part of its amount
func IsPartiallyPaid(p *Payment) bool {
	return p != nil && p.Status == StatusPartiallyPaid
}

// IsExpired reports whether the payment expired. A PENDING or PARTIALLY_PAID payment whose
// expiresAt has passed counts as expired even before the service reports EXPIRED.
func IsExpired(p *Payment, now time.Time) bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case StatusExpired:
		return true
	case StatusPending, StatusPartiallyPaid:
		return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
	default:
		return false
	}
}

// IsFinal reports whether no further transitions are expected
func IsFinal(p *Payment) bool {
	return DefaultStatusPolicy.IsFinal(p)
}

// Progress returns the fraction of the amount confirmed so far, in [0, 1]
func Progress(p *Payment) float64 {
	if p == nil {
		return 0
	}
	if IsPaid(p) {
		return 1
	}
	if !p.Amount.IsPositive() || !p.PaidAmount.IsPositive() {
		return 0
	}
	ratio, _ := p.PaidAmount.Div(p.Amount).Float64()
	if ratio > 1 {
		return 1
	}
	return ratio
}

// StatusPolicy configures how PARTIALLY_PAID is classified.
// By default a partial payment is not final: the payer may still top it up.
type StatusPolicy struct {
	PartialPaymentIsFinal bool
}

// DefaultStatusPolicy treats PARTIALLY_PAID as non-final
var DefaultStatusPolicy = StatusPolicy{}

// IsFinal reports whether p is in a state from which no further transition is expected
func (sp StatusPolicy) IsFinal(p *Payment) bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case StatusConfirmed, StatusExpired, StatusFailed, StatusCancelled:
		return true
	case StatusPartiallyPaid:
		return sp.PartialPaymentIsFinal
	default:
		return false
	}
}

// IsPaid is shorthand for IsPaid(p)
func (p *Payment) IsPaid() bool { return IsPaid(p) }

// IsPartiallyPaid is shorthand for IsPartiallyPaid(p)
func (p *Payment) IsPartiallyPaid() bool { return IsPartiallyPaid(p) }

// IsExpired is shorthand for IsExpired(p, now)
func (p *Payment) IsExpired(now time.Time) bool { return IsExpired(p, now) }

// IsFinal is shorthand for IsFinal(p)
func (p *Payment) IsFinal() bool { return IsFinal(p) }

// Progress is shorthand for Progress(p)
func (p *Payment) Progress() float64 { return Progress(p) }
