package cryptopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// DefaultSignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const DefaultSignatureHeader = "X-CryptoPay-Signature"

// EventType tags a webhook event
type EventType string

// Webhook event types
const (
	EventPaymentCreated       EventType = "payment.created"
	EventPaymentPending       EventType = "payment.pending"
	EventPaymentPartiallyPaid EventType = "payment.partially_paid"
	EventPaymentConfirmed     EventType = "payment.confirmed"
	EventPaymentExpired       EventType = "payment.expired"
	EventPaymentFailed        EventType = "payment.failed"
	EventPaymentCancelled     EventType = "payment.cancelled"
)

var knownEvents = map[EventType]bool{
	EventPaymentCreated:       true,
	EventPaymentPending:       true,
	EventPaymentPartiallyPaid: true,
	EventPaymentConfirmed:     true,
	EventPaymentExpired:       true,
	EventPaymentFailed:        true,
	EventPaymentCancelled:     true,
}

// Known reports whether the event type is one this library version knows about
func (e EventType) Known() bool {
	return knownEvents[e]
}

// WebhookEvent is a verified, decoded webhook notification
type WebhookEvent struct {
	Event     EventType
	Payment   Payment
	Timestamp time.Time

	// Raw is the verified request body
	Raw []byte
}

// WebhookVerifier verifies and decodes webhook deliveries. Implemented by *WebhookParser and *Client.
type WebhookVerifier interface {
	ParseWebhook(rawBody []byte, signature string) (*WebhookEvent, error)
}

// SignatureHeaderOf returns the header verifier reads signatures from. Verifiers that expose a
// SignatureHeader method (such as *Client) decide it; others get DefaultSignatureHeader.
func SignatureHeaderOf(verifier WebhookVerifier) string {
	if hv, ok := verifier.(interface{ SignatureHeader() string }); ok {
		if header := hv.SignatureHeader(); header != "" {
			return header
		}
	}
	return DefaultSignatureHeader
}

// WebhookHandlerFunc processes a verified webhook event
type WebhookHandlerFunc func(ctx context.Context, event *WebhookEvent) error

// webhookSchema describes the structure every webhook body must have. Signature verification
// runs before it is evaluated.
const webhookSchema = `{
	"type": "object",
	"required": ["event", "payment"],
	"properties": {
		"event": {"type": "string", "minLength": 1},
		"timestamp": {"type": ["string", "number"]},
		"payment": {
			"type": "object",
			"required": ["id", "status"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"status": {"type": "string", "enum": ["PENDING", "PARTIALLY_PAID", "CONFIRMED", "EXPIRED", "FAILED", "CANCELLED"]},
				"amount": {"type": ["string", "number"]},
				"paidAmount": {"type": ["string", "number", "null"]},
				"currency": {"type": "string"},
				"txHash": {"type": ["string", "null"]},
				"rewardAmount": {"type": ["string", "number", "null"]},
				"rewardCurrency": {"type": ["string", "null"]},
				"rewardData": {"type": ["object", "null"]},
				"metadata": {"type": ["object", "null"]},
				"createdAt": {"type": ["string", "null"]},
				"expiresAt": {"type": ["string", "null"]},
				"confirmedAt": {"type": ["string", "null"]}
			}
		}
	}
}`

var compiledWebhookSchema = func() *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(webhookSchema))
	if err != nil {
		panic(fmt.Sprintf("cryptopay: invalid webhook schema: %v", err))
	}
	return schema
}()

// ============================================================================
// Parser
// ============================================================================

// WebhookParser verifies and decodes webhook bodies signed with a shared secret
type WebhookParser struct {
	secret       string
	tolerance    time.Duration
	allowUnknown bool
	now          func() time.Time
	logger       *zap.Logger
	telemetry    *Telemetry
}

// WebhookOption configures a WebhookParser
type WebhookOption func(*WebhookParser)

// WithTolerance rejects events whose timestamp is further than d from the current time.
// Zero (the default) disables the check.
func WithTolerance(d time.Duration) WebhookOption {
	return func(p *WebhookParser) {
		p.tolerance = d
	}
}

// WithAllowUnknownEvents accepts event types this library version does not know about
func WithAllowUnknownEvents() WebhookOption {
	return func(p *WebhookParser) {
		p.allowUnknown = true
	}
}

// WithWebhookLogger sets the logger used to report rejected deliveries
func WithWebhookLogger(logger *zap.Logger) WebhookOption {
	return func(p *WebhookParser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWebhookTelemetry sets the instruments used to count verifications
func WithWebhookTelemetry(t *Telemetry) WebhookOption {
	return func(p *WebhookParser) {
		if t != nil {
			p.telemetry = t
		}
	}
}

// NewWebhookParser creates a parser for bodies signed with secret
func NewWebhookParser(secret string, opts ...WebhookOption) *WebhookParser {
	p := &WebhookParser{
		secret: secret,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.telemetry == nil {
		p.telemetry = NewTelemetry(nil, nil)
	}
	return p
}

// ParseWebhook implements WebhookVerifier
func (p *WebhookParser) ParseWebhook(rawBody []byte, signature string) (*WebhookEvent, error) {
	return p.Parse(rawBody, signature)
}

// Parse verifies signature over rawBody and decodes it.
//
// Errors, in the order they are checked:
//   - KindConfiguration: no secret configured
//   - KindSignatureInvalid: the signature does not match the body
//   - KindPayloadMalformed: the verified body does not have the expected structure
//   - KindSignatureInvalid: the event timestamp is outside the configured tolerance
//
// No field of the body is inspected before the signature has been verified.
func (p *WebhookParser) Parse(rawBody []byte, signature string) (*WebhookEvent, error) {
	ctx := context.Background()

	valid, err := VerifySignature(rawBody, signature, p.secret)
	if err != nil {
		p.logger.Error("webhook secret is not configured; rejecting delivery")
		p.telemetry.recordWebhook(ctx, "misconfigured")
		return nil, err
	}
	if !valid {
		p.logger.Warn("webhook signature rejected", zap.Int("body_bytes", len(rawBody)))
		p.telemetry.recordWebhook(ctx, "signature_invalid")
		return nil, &Error{Kind: KindSignatureInvalid, Message: "signature does not match body"}
	}

	event, err := p.decode(rawBody)
	if err != nil {
		p.logger.Warn("webhook payload malformed", zap.Error(err))
		p.telemetry.recordWebhook(ctx, "malformed")
		return nil, err
	}

	if p.tolerance > 0 {
		if event.Timestamp.IsZero() {
			p.telemetry.recordWebhook(ctx, "malformed")
			return nil, newMalformedError("timestamp", "timestamp is required when a tolerance is configured", nil)
		}
		skew := p.now().Sub(event.Timestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > p.tolerance {
			p.logger.Warn("webhook timestamp outside tolerance",
				zap.String("payment_id", event.Payment.ID),
				zap.Duration("skew", skew),
			)
			p.telemetry.recordWebhook(ctx, "stale")
			return nil, &Error{
				Kind:    KindSignatureInvalid,
				Message: "event timestamp outside tolerance",
				Field:   "timestamp",
				Details: map[string]interface{}{
					"tolerance": p.tolerance.String(),
					"skew":      skew.String(),
				},
			}
		}
	}

	p.telemetry.recordWebhook(ctx, "accepted")
	return event, nil
}

func (p *WebhookParser) decode(rawBody []byte) (*WebhookEvent, error) {
	if !json.Valid(rawBody) {
		return nil, newMalformedError("", "body is not valid JSON", nil)
	}

	result, err := compiledWebhookSchema.Validate(gojsonschema.NewBytesLoader(rawBody))
	if err != nil {
		return nil, newMalformedError("", "body could not be validated", err)
	}
	if !result.Valid() {
		return nil, schemaError(result.Errors())
	}

	var wire struct {
		Event     EventType       `json:"event"`
		Payment   json.RawMessage `json:"payment"`
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(rawBody, &wire); err != nil {
		return nil, newMalformedError("", "body could not be decoded", err)
	}

	if !wire.Event.Known() && !p.allowUnknown {
		e := newMalformedError("event", fmt.Sprintf("unknown event type %q", wire.Event), nil)
		e.Details = map[string]interface{}{"received": string(wire.Event)}
		return nil, e
	}

	var payment Payment
	if err := json.Unmarshal(wire.Payment, &payment); err != nil {
		return nil, newMalformedError("payment", "payment could not be decoded", err)
	}

	timestamp, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		return nil, newMalformedError("timestamp", "timestamp must be an RFC 3339 string or a unix time", err)
	}

	return &WebhookEvent{
		Event:     wire.Event,
		Payment:   payment,
		Timestamp: timestamp,
		Raw:       bytes.Clone(rawBody),
	}, nil
}

// schemaError converts the first schema violation into a malformed-payload error naming the field
func schemaError(violations []gojsonschema.ResultError) *Error {
	if len(violations) == 0 {
		return newMalformedError("", "payload does not match the expected structure", nil)
	}

	first := violations[0]
	field := first.Field()
	if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
		field = ""
	}
	if first.Type() == "required" {
		if property, ok := first.Details()["property"].(string); ok {
			if field == "" {
				field = property
			} else {
				field = field + "." + property
			}
		}
	}

	messages := make([]string, 0, len(violations))
	for _, v := range violations {
		messages = append(messages, v.String())
	}

	e := newMalformedError(field, first.Description(), nil)
	e.Details = map[string]interface{}{"violations": messages}
	return e
}

// parseTimestamp accepts an RFC 3339 string, a numeric string, or a JSON number.
// Numbers above 1e12 are unix milliseconds, otherwise unix seconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return time.Time{}, nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return time.Time{}, err
		}
		if t, err := time.Parse(time.RFC3339Nano, str); err == nil {
			return t, nil
		}
		s = str
	}

	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// WebhookStatusCode maps a ParseWebhook or handler error to the HTTP status a webhook endpoint
// should answer with. The service retries deliveries that receive a 5xx.
func WebhookStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case KindSignatureInvalid:
		return http.StatusUnauthorized
	case KindPayloadMalformed:
		return http.StatusBadRequest
	case KindConfiguration:
		return http.StatusInternalServerError
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

// MaxWebhookBodyBytes bounds the body size webhook adapters read
const MaxWebhookBodyBytes = 1 << 20

// WebhookResponseBody is the JSON body a webhook endpoint answers with. Parse failures report
// their kind; handler failures and configuration errors are not described to the caller.
func WebhookResponseBody(err error) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{"received": true}
	}
	var maxErr *http.MaxBytesError
	switch {
	case KindOf(err) == KindSignatureInvalid:
		return map[string]interface{}{"error": "invalid signature"}
	case KindOf(err) == KindPayloadMalformed:
		var e *Error
		errors.As(err, &e)
		return map[string]interface{}{"error": e.Message, "field": e.Field}
	case errors.As(err, &maxErr):
		return map[string]interface{}{"error": "request body too large"}
	default:
		return map[string]interface{}{"error": "webhook processing failed"}
	}
}
