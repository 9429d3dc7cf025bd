package cryptopay

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rewardPaymentJSON = `{
	"id": "pay_r",
	"amount": "100",
	"currency": "USD",
	"status": "PENDING",
	"rewardAmount": "12.5",
	"rewardCurrency": "POINTS",
	"rewardData": {"campaign": "spring", "tiers": [1, 2], "meta": {"source": "qr"}},
	"createdAt": "2026-01-01T00:00:00Z",
	"expiresAt": "2026-01-01T01:00:00Z"
}`

func decodePayment(t *testing.T, raw string) *Payment {
	t.Helper()
	var p Payment
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func TestRewardIsReadOnly(t *testing.T) {
	p := decodePayment(t, rewardPaymentJSON)

	data := p.Reward().Data()
	data["campaign"] = "changed"
	data["meta"].(map[string]interface{})["source"] = "changed"
	data["tiers"].([]interface{})[0] = 99.0

	want := map[string]interface{}{
		"campaign": "spring",
		"tiers":    []interface{}{1.0, 2.0},
		"meta":     map[string]interface{}{"source": "qr"},
	}
	if diff := cmp.Diff(want, p.Reward().Data()); diff != "" {
		t.Errorf("reward data changed through a returned copy (-want +got):\n%s", diff)
	}

	amount, ok := p.Reward().Amount()
	require.True(t, ok)
	assert.Equal(t, "12.5", amount.String())
	assert.Equal(t, "POINTS", p.Reward().Currency())
}

func TestRewardSurvivesRoundTrip(t *testing.T) {
	created := decodePayment(t, rewardPaymentJSON)

	encoded, err := json.Marshal(created)
	require.NoError(t, err)
	fetched := decodePayment(t, string(encoded))

	assert.True(t, created.Reward().Equal(fetched.Reward()))
	assert.NoError(t, VerifyRewardLocked(created, fetched))
}

func TestVerifyRewardLocked(t *testing.T) {
	created := decodePayment(t, rewardPaymentJSON)

	tests := []struct {
		name  string
		patch string
		field string
	}{
		{"amount", `"rewardAmount": "13"`, "rewardAmount"},
		{"currency", `"rewardCurrency": "MILES"`, "rewardCurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"id":"pay_r","amount":"100","currency":"USD","status":"CONFIRMED","rewardAmount":"12.5","rewardCurrency":"POINTS",` + tt.patch + `}`
			fetched := decodePayment(t, raw)

			err := VerifyRewardLocked(created, fetched)
			require.ErrorIs(t, err, ErrValidation)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.field, e.Field)
		})
	}

	other := decodePayment(t, `{"id":"pay_other","amount":"1","currency":"USD","status":"PENDING"}`)
	assert.ErrorIs(t, VerifyRewardLocked(created, other), ErrValidation)
	assert.ErrorIs(t, VerifyRewardLocked(nil, created), ErrValidation)
}

func TestPaymentRejectsNegativeReward(t *testing.T) {
	var p Payment
	err := json.Unmarshal([]byte(`{"id":"p","amount":"1","currency":"USD","status":"PENDING","rewardAmount":"-1","rewardCurrency":"X"}`), &p)
	assert.Error(t, err)
}

func TestTemplateCopiesReward(t *testing.T) {
	p := decodePayment(t, rewardPaymentJSON)
	p.Metadata = map[string]interface{}{"order": "A-1"}

	req := p.Template()
	require.NotNil(t, req.Reward)
	assert.Equal(t, "POINTS", req.Reward.Currency)
	assert.True(t, req.Reward.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.NoError(t, req.Validate())

	// Changing the template does not reach the original payment
	req.Reward.Data["campaign"] = "summer"
	req.Metadata["order"] = "B-2"
	assert.Equal(t, "spring", p.Reward().Data()["campaign"])
	assert.Equal(t, "A-1", p.Metadata["order"])
}

func TestRewardSpecValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	zero := decimal.Zero

	assert.NoError(t, RewardSpec{}.Validate())
	assert.NoError(t, RewardSpec{Amount: &zero, Currency: "PTS"}.Validate())
	assert.ErrorIs(t, RewardSpec{Amount: &neg, Currency: "PTS"}.Validate(), ErrValidation)
	assert.ErrorIs(t, RewardSpec{Amount: &zero}.Validate(), ErrValidation)
}

func TestRewardWithoutMetadata(t *testing.T) {
	p := decodePayment(t, `{"id":"p","amount":"1","currency":"USD","status":"PENDING"}`)
	assert.True(t, p.Reward().IsZero())
	assert.Nil(t, p.Template().Reward)
	_, ok := p.Reward().Amount()
	assert.False(t, ok)
}
