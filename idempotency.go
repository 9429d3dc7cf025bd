package cryptopay

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// IdempotencyKeyHeader is the request header the service reads idempotency keys from
const IdempotencyKeyHeader = "Idempotency-Key"

// MaxIdempotencyKeyLength is the longest key the service accepts, in bytes
const MaxIdempotencyKeyLength = 255

// callOptions holds per-call settings
type callOptions struct {
	idempotencyKey    string
	hasIdempotencyKey bool
}

// CallOption configures a single CreatePayment or RequestWithdrawal call
type CallOption func(*callOptions)

// WithIdempotencyKey makes the call idempotent: the service returns the same resource for
// every submission of the same key. The key is sent unmodified and must not be blank.
func WithIdempotencyKey(key string) CallOption {
	return func(o *callOptions) {
		o.idempotencyKey = key
		o.hasIdempotencyKey = true
	}
}

// resolveCallOptions applies opts and validates the idempotency key if one was given.
// It returns the key to send, "" when none was supplied.
func resolveCallOptions(opts []CallOption) (string, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.hasIdempotencyKey {
		return "", nil
	}
	if err := ValidateIdempotencyKey(o.idempotencyKey); err != nil {
		return "", err
	}
	return o.idempotencyKey, nil
}

// ValidateIdempotencyKey checks that key is non-blank, at most MaxIdempotencyKeyLength bytes,
// and free of control characters (it travels in an HTTP header).
func ValidateIdempotencyKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return newValidationError("idempotencyKey", "idempotency key must not be empty or whitespace", map[string]interface{}{
			"received": key,
		})
	}
	if len(key) > MaxIdempotencyKeyLength {
		return newValidationError("idempotencyKey", "idempotency key is too long", map[string]interface{}{
			"max":      MaxIdempotencyKeyLength,
			"received": len(key),
		})
	}
	for _, r := range key {
		if unicode.IsControl(r) {
			return newValidationError("idempotencyKey", "idempotency key must not contain control characters", nil)
		}
	}
	return nil
}

// NewIdempotencyKey generates a random key of the form "idem_" + 32 hex characters
func NewIdempotencyKey() string {
	return "idem_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}
