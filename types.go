package cryptopay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Chain identifies the blockchain a payment or withdrawal settles on (e.g. "ethereum", "solana")
type Chain string

// Supported chains
const (
	ChainEthereum Chain = "ethereum"
	ChainPolygon  Chain = "polygon"
	ChainBSC      Chain = "bsc"
	ChainBase     Chain = "base"
	ChainArbitrum Chain = "arbitrum"
	ChainSolana   Chain = "solana"
	ChainTron     Chain = "tron"
)

// ChainFamily groups chains that share an address format
type ChainFamily string

const (
	FamilyEVM    ChainFamily = "evm"
	FamilySolana ChainFamily = "solana"
	FamilyTron   ChainFamily = "tron"
)

// Family returns the address family of the chain, or "" for unknown chains
func (c Chain) Family() ChainFamily {
	switch Chain(strings.ToLower(string(c))) {
	case ChainEthereum, ChainPolygon, ChainBSC, ChainBase, ChainArbitrum:
		return FamilyEVM
	case ChainSolana:
		return FamilySolana
	case ChainTron:
		return FamilyTron
	default:
		return ""
	}
}

// Valid reports whether the chain is one the service settles on
func (c Chain) Valid() bool {
	return c.Family() != ""
}

// PaymentStatus is the server-reported lifecycle state of a payment
type PaymentStatus string

// Payment statuses. PENDING is initial; CONFIRMED, EXPIRED, FAILED and CANCELLED are terminal.
const (
	StatusPending       PaymentStatus = "PENDING"
	StatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	StatusConfirmed     PaymentStatus = "CONFIRMED"
	StatusExpired       PaymentStatus = "EXPIRED"
	StatusFailed        PaymentStatus = "FAILED"
	StatusCancelled     PaymentStatus = "CANCELLED"
)

// AllPaymentStatuses lists every status in lifecycle order
var AllPaymentStatuses = []PaymentStatus{
	StatusPending,
	StatusPartiallyPaid,
	StatusConfirmed,
	StatusExpired,
	StatusFailed,
	StatusCancelled,
}

// Valid reports whether s is a known status
func (s PaymentStatus) Valid() bool {
	for _, known := range AllPaymentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ============================================================================
// Payment
// ============================================================================

// Payment is a snapshot of a payment as reported by the service.
//
// Payments are created only by Client.CreatePayment and mutated only by the service; the
// library never writes a Payment back. Reward metadata is locked at creation and exposed
// read-only through Reward().
type Payment struct {
	ID             string
	Amount         decimal.Decimal
	Currency       string
	Status         PaymentStatus
	TxHash         string
	PaidAmount     decimal.Decimal
	Chain          Chain
	Address        string
	CryptoAmount   decimal.Decimal
	CryptoCurrency string
	Description    string
	Metadata       map[string]interface{}
	CreatedAt      time.Time
	ExpiresAt      time.Time
	ConfirmedAt    *time.Time

	reward Reward
}

// paymentJSON is the wire shape of a Payment
type paymentJSON struct {
	ID             string                 `json:"id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Status         PaymentStatus          `json:"status"`
	TxHash         string                 `json:"txHash,omitempty"`
	PaidAmount     *decimal.Decimal       `json:"paidAmount,omitempty"`
	Chain          Chain                  `json:"chain,omitempty"`
	Address        string                 `json:"address,omitempty"`
	CryptoAmount   *decimal.Decimal       `json:"cryptoAmount,omitempty"`
	CryptoCurrency string                 `json:"cryptoCurrency,omitempty"`
	Description    string                 `json:"description,omitempty"`
	RewardAmount   *decimal.Decimal       `json:"rewardAmount,omitempty"`
	RewardCurrency string                 `json:"rewardCurrency,omitempty"`
	RewardData     map[string]interface{} `json:"rewardData,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	ExpiresAt      time.Time              `json:"expiresAt"`
	ConfirmedAt    *time.Time             `json:"confirmedAt,omitempty"`
}

// MarshalJSON encodes the payment in its wire shape
func (p Payment) MarshalJSON() ([]byte, error) {
	w := paymentJSON{
		ID:             p.ID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		TxHash:         p.TxHash,
		Chain:          p.Chain,
		Address:        p.Address,
		CryptoCurrency: p.CryptoCurrency,
		Description:    p.Description,
		RewardCurrency: p.reward.currency,
		RewardData:     p.reward.Data(),
		Metadata:       p.Metadata,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		ConfirmedAt:    p.ConfirmedAt,
	}
	if !p.PaidAmount.IsZero() {
		w.PaidAmount = &p.PaidAmount
	}
	if !p.CryptoAmount.IsZero() {
		w.CryptoAmount = &p.CryptoAmount
	}
	if p.reward.amount != nil {
		amount := *p.reward.amount
		w.RewardAmount = &amount
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape, rejecting unknown statuses and negative rewards
func (p *Payment) UnmarshalJSON(data []byte) error {
	var w paymentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Status != "" && !w.Status.Valid() {
		return fmt.Errorf("unknown payment status %q", w.Status)
	}
	reward, err := newReward(w.RewardAmount, w.RewardCurrency, w.RewardData)
	if err != nil {
		return err
	}

	*p = Payment{
		ID:             w.ID,
		Amount:         w.Amount,
		Currency:       w.Currency,
		Status:         w.Status,
		TxHash:         w.TxHash,
		Chain:          w.Chain,
		Address:        w.Address,
		CryptoCurrency: w.CryptoCurrency,
		Description:    w.Description,
		Metadata:       w.Metadata,
		CreatedAt:      w.CreatedAt,
		ExpiresAt:      w.ExpiresAt,
		ConfirmedAt:    w.ConfirmedAt,
		reward:         reward,
	}
	if w.PaidAmount != nil {
		p.PaidAmount = *w.PaidAmount
	}
	if w.CryptoAmount != nil {
		p.CryptoAmount = *w.CryptoAmount
	}
	return nil
}

// ============================================================================
// Requests and other resources
// ============================================================================

// Bounds for CreatePaymentRequest.ExpiresIn, in seconds
const (
	MinExpiresIn = 60
	MaxExpiresIn = 86400
)

// CreatePaymentRequest describes a payment to create
type CreatePaymentRequest struct {
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Chain       Chain                  `json:"chain,omitempty"`
	ExpiresIn   int                    `json:"expiresIn,omitempty"` // seconds; 0 = service default
	Description string                 `json:"description,omitempty"`
	WebhookURL  string                 `json:"webhookUrl,omitempty"`
	Reward      *RewardSpec            `json:"-"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// MarshalJSON flattens the reward spec into the service's rewardAmount/rewardCurrency/rewardData fields
func (r CreatePaymentRequest) MarshalJSON() ([]byte, error) {
	type plain CreatePaymentRequest
	w := struct {
		plain
		RewardAmount   *decimal.Decimal       `json:"rewardAmount,omitempty"`
		RewardCurrency string                 `json:"rewardCurrency,omitempty"`
		RewardData     map[string]interface{} `json:"rewardData,omitempty"`
	}{plain: plain(r)}
	if r.Reward != nil {
		w.RewardAmount = r.Reward.Amount
		w.RewardCurrency = r.Reward.Currency
		w.RewardData = r.Reward.Data
	}
	return json.Marshal(w)
}

// Validate checks the request before it is sent
func (r CreatePaymentRequest) Validate() error {
	if !r.Amount.IsPositive() {
		return newValidationError("amount", "amount must be greater than zero", map[string]interface{}{
			"received": r.Amount.String(),
		})
	}
	if strings.TrimSpace(r.Currency) == "" {
		return newValidationError("currency", "currency is required", nil)
	}
	if r.Chain != "" && !r.Chain.Valid() {
		return newValidationError("chain", fmt.Sprintf("unsupported chain %q", r.Chain), nil)
	}
	if r.ExpiresIn != 0 && (r.ExpiresIn < MinExpiresIn || r.ExpiresIn > MaxExpiresIn) {
		return newValidationError("expiresIn",
			fmt.Sprintf("expiresIn must be between %d and %d seconds", MinExpiresIn, MaxExpiresIn),
			map[string]interface{}{
				"min":      MinExpiresIn,
				"max":      MaxExpiresIn,
				"received": r.ExpiresIn,
			})
	}
	if r.Reward != nil {
		if err := r.Reward.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// BalanceEntry is the balance of a single currency on a chain
type BalanceEntry struct {
	Currency  string          `json:"currency"`
	Available decimal.Decimal `json:"available"`
	Pending   decimal.Decimal `json:"pending"`
}

// MerchantBalance lists the merchant's balances on a chain
type MerchantBalance struct {
	Chain     Chain          `json:"chain"`
	Balances  []BalanceEntry `json:"balances"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Available returns the available balance for currency, zero if absent
func (b MerchantBalance) Available(currency string) decimal.Decimal {
	for _, entry := range b.Balances {
		if strings.EqualFold(entry.Currency, currency) {
			return entry.Available
		}
	}
	return decimal.Zero
}

// WithdrawalStatus is the lifecycle state of a withdrawal
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "PENDING"
	WithdrawalProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalFailed     WithdrawalStatus = "FAILED"
)

// WithdrawalRequest moves funds from the merchant balance to an external address
type WithdrawalRequest struct {
	Chain    Chain           `json:"chain"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Address  string          `json:"address"`
}

// Validate checks the request before it is sent
func (r WithdrawalRequest) Validate() error {
	if !r.Chain.Valid() {
		return newValidationError("chain", fmt.Sprintf("unsupported chain %q", r.Chain), nil)
	}
	if strings.TrimSpace(r.Currency) == "" {
		return newValidationError("currency", "currency is required", nil)
	}
	if !r.Amount.IsPositive() {
		return newValidationError("amount", "amount must be greater than zero", map[string]interface{}{
			"received": r.Amount.String(),
		})
	}
	return ValidateAddress(r.Chain, r.Address)
}

// Withdrawal is a withdrawal as reported by the service
type Withdrawal struct {
	ID        string           `json:"id"`
	Chain     Chain            `json:"chain"`
	Currency  string           `json:"currency"`
	Amount    decimal.Decimal  `json:"amount"`
	Fee       decimal.Decimal  `json:"fee"`
	Address   string           `json:"address"`
	Status    WithdrawalStatus `json:"status"`
	TxHash    string           `json:"txHash,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}
