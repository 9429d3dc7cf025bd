package cryptopay

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// RewardSpec is the reward metadata attached to a payment at creation time.
// Once the payment exists its reward can no longer be changed through this library;
// create a new payment (see Payment.Template) to attach a different reward.
type RewardSpec struct {
	Amount   *decimal.Decimal
	Currency string
	Data     map[string]interface{}
}

// Validate checks the reward spec: non-negative amount, and a currency whenever an amount is set
func (r RewardSpec) Validate() error {
	if r.Amount != nil {
		if r.Amount.IsNegative() {
			return newValidationError("rewardAmount", "rewardAmount must not be negative", map[string]interface{}{
				"min":      0,
				"received": r.Amount.String(),
			})
		}
		if strings.TrimSpace(r.Currency) == "" {
			return newValidationError("rewardCurrency", "rewardCurrency is required when rewardAmount is set", nil)
		}
	}
	return nil
}

// Reward is the read-only reward metadata of an existing payment
type Reward struct {
	amount   *decimal.Decimal
	currency string
	data     map[string]interface{}
}

func newReward(amount *decimal.Decimal, currency string, data map[string]interface{}) (Reward, error) {
	if amount != nil && amount.IsNegative() {
		return Reward{}, fmt.Errorf("rewardAmount must not be negative, got %s", amount.String())
	}
	r := Reward{currency: currency, data: deepCopyMap(data)}
	if amount != nil {
		a := *amount
		r.amount = &a
	}
	return r, nil
}

// Amount returns the reward amount and whether one was set
func (r Reward) Amount() (decimal.Decimal, bool) {
	if r.amount == nil {
		return decimal.Zero, false
	}
	return *r.amount, true
}

// Currency returns the reward currency
func (r Reward) Currency() string {
	return r.currency
}

// Data returns a copy of the opaque reward data; changing it does not affect the payment
func (r Reward) Data() map[string]interface{} {
	return deepCopyMap(r.data)
}

// IsZero reports whether no reward metadata was attached
func (r Reward) IsZero() bool {
	return r.amount == nil && r.currency == "" && len(r.data) == 0
}

// Equal reports whether two rewards carry identical metadata
func (r Reward) Equal(other Reward) bool {
	if (r.amount == nil) != (other.amount == nil) {
		return false
	}
	if r.amount != nil && !r.amount.Equal(*other.amount) {
		return false
	}
	if r.currency != other.currency {
		return false
	}
	if len(r.data) == 0 && len(other.data) == 0 {
		return true
	}
	return reflect.DeepEqual(r.data, other.data)
}

// Spec converts the reward back into a spec for a new creation request
func (r Reward) Spec() *RewardSpec {
	if r.IsZero() {
		return nil
	}
	spec := &RewardSpec{Currency: r.currency, Data: r.Data()}
	if r.amount != nil {
		a := *r.amount
		spec.Amount = &a
	}
	return spec
}

// Reward returns the payment's locked reward metadata
func (p Payment) Reward() Reward {
	return Reward{amount: p.reward.amount, currency: p.reward.currency, data: p.reward.data}
}

// Template builds a fresh creation request from an existing payment.
// This is the only supported way to reuse a payment: the result has no identity and is
// submitted through CreatePayment, producing a new payment with its own locked reward.
func (p Payment) Template() CreatePaymentRequest {
	return CreatePaymentRequest{
		Amount:      p.Amount,
		Currency:    p.Currency,
		Chain:       p.Chain,
		Description: p.Description,
		Reward:      p.reward.Spec(),
		Metadata:    deepCopyMap(p.Metadata),
	}
}

// VerifyRewardLocked reports a validation error when a later snapshot of a payment carries
// reward metadata different from the snapshot returned at creation.
func VerifyRewardLocked(created, fetched *Payment) error {
	if created == nil || fetched == nil {
		return newValidationError("payment", "both payment snapshots are required", nil)
	}
	if created.ID != fetched.ID {
		return newValidationError("id", "snapshots belong to different payments", map[string]interface{}{
			"expected": created.ID,
			"received": fetched.ID,
		})
	}

	a, b := created.reward, fetched.reward
	if (a.amount == nil) != (b.amount == nil) || (a.amount != nil && !a.amount.Equal(*b.amount)) {
		return newValidationError("rewardAmount", "reward amount changed after creation", map[string]interface{}{
			"expected": rewardAmountString(a),
			"received": rewardAmountString(b),
		})
	}
	if a.currency != b.currency {
		return newValidationError("rewardCurrency", "reward currency changed after creation", map[string]interface{}{
			"expected": a.currency,
			"received": b.currency,
		})
	}
	if !a.Equal(b) {
		return newValidationError("rewardData", "reward data changed after creation", nil)
	}
	return nil
}

func rewardAmountString(r Reward) string {
	if r.amount == nil {
		return ""
	}
	return r.amount.String()
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
