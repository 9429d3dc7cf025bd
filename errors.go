package cryptopay

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error surfaced by the library.
type ErrorKind string

// Error kinds
const (
	KindAuthentication   ErrorKind = "authentication_error"
	KindValidation       ErrorKind = "validation_error"
	KindConfiguration    ErrorKind = "configuration_error"
	KindSignatureInvalid ErrorKind = "signature_invalid"
	KindPayloadMalformed ErrorKind = "payload_malformed"
	KindNetwork          ErrorKind = "network_error"
	KindTimeout          ErrorKind = "timeout_error"
	KindPaymentFailed    ErrorKind = "payment_failed"
	KindCancelled        ErrorKind = "cancelled"
	KindNotFound         ErrorKind = "not_found"
	KindConflict         ErrorKind = "conflict"
	KindRateLimited      ErrorKind = "rate_limited"
	KindServer           ErrorKind = "server_error"
)

// Error is the error type returned at the public API boundary.
//
// Field, Details, PaymentID and Status are populated when they help the caller act on the
// error without inspecting library internals (e.g. the offending request field and its bound,
// or the terminal status a waited-on payment reached).
type Error struct {
	Kind       ErrorKind              `json:"kind"`
	Message    string                 `json:"message"`
	Field      string                 `json:"field,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	PaymentID  string                 `json:"paymentId,omitempty"`
	Status     PaymentStatus          `json:"status,omitempty"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`

	// Payment is the last snapshot observed, set for payment_failed errors.
	Payment *Payment `json:"-"`
	Err     error    `json:"-"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("cryptopay: %s: %s", e.Kind, e.Message)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so the Err* sentinels work with errors.Is.
// Configuration errors also match ErrValidation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindValidation && e.Kind == KindConfiguration
}

// Sentinels for errors.Is
var (
	ErrAuthentication   = &Error{Kind: KindAuthentication, Message: "authentication failed"}
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrConfiguration    = &Error{Kind: KindConfiguration, Message: "client misconfigured"}
	ErrSignatureInvalid = &Error{Kind: KindSignatureInvalid, Message: "webhook signature invalid"}
	ErrPayloadMalformed = &Error{Kind: KindPayloadMalformed, Message: "webhook payload malformed"}
	ErrNetwork          = &Error{Kind: KindNetwork, Message: "network failure"}
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "timed out"}
	ErrPaymentFailed    = &Error{Kind: KindPaymentFailed, Message: "payment reached a non-paid terminal state"}
	ErrCancelled        = &Error{Kind: KindCancelled, Message: "operation cancelled"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "request conflicts with an earlier one"}
	ErrRateLimited      = &Error{Kind: KindRateLimited, Message: "rate limited"}
	ErrServer           = &Error{Kind: KindServer, Message: "server error"}
)

// NewError creates a new error of the given kind
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func newValidationError(field, message string, details map[string]interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: message,
		Field:   field,
		Details: details,
	}
}

func newConfigurationError(field, message string) *Error {
	return &Error{
		Kind:    KindConfiguration,
		Message: message,
		Field:   field,
	}
}

func newMalformedError(field, message string, err error) *Error {
	return &Error{
		Kind:    KindPayloadMalformed,
		Message: message,
		Field:   field,
		Err:     err,
	}
}

// KindOf returns the kind of err, or "" when err is not (and does not wrap) an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is transient: a later identical request may succeed.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindTimeout, KindRateLimited, KindServer:
		return true
	default:
		return false
	}
}
