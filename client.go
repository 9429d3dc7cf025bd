package cryptopay

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Transport performs the API round-trips. The http subpackage provides the standard
// implementation; every method may fail with authentication, validation, network, timeout,
// rate-limit or server errors.
type Transport interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest, idempotencyKey string) (*Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetBalance(ctx context.Context, chain Chain) (*MerchantBalance, error)
	RequestWithdrawal(ctx context.Context, req WithdrawalRequest, idempotencyKey string) (*Withdrawal, error)
}

// Client is the entry point for creating and tracking payments and verifying webhooks.
//
// The configuration is fixed at construction; a Client is safe for concurrent use and keeps no
// state between calls.
type Client struct {
	config    Config
	transport Transport
	logger    *zap.Logger
	telemetry *Telemetry
	waiter    *Waiter
	webhooks  *WebhookParser
}

type clientOptions struct {
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	policy         StatusPolicy
	webhookOpts    []WebhookOption
}

// ClientOption configures the client
type ClientOption func(*clientOptions)

// WithLogger sets the logger (defaults to a no-op logger)
func WithLogger(logger *zap.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithTracerProvider sets the tracer provider (defaults to the otel global)
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(o *clientOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider (defaults to the otel global)
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) {
		o.meterProvider = mp
	}
}

// WithStatusPolicy sets how PARTIALLY_PAID is classified while waiting
func WithStatusPolicy(policy StatusPolicy) ClientOption {
	return func(o *clientOptions) {
		o.policy = policy
	}
}

// WithWebhookOptions configures the client's webhook parser
func WithWebhookOptions(opts ...WebhookOption) ClientOption {
	return func(o *clientOptions) {
		o.webhookOpts = append(o.webhookOpts, opts...)
	}
}

// NewClient creates a client over transport. The config is validated and defaulted here;
// a missing webhook secret is only reported when a webhook is verified.
func NewClient(config Config, transport Transport, opts ...ClientOption) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, newConfigurationError("transport", "transport is required")
	}

	o := &clientOptions{policy: DefaultStatusPolicy}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	telemetry := NewTelemetry(o.tracerProvider, o.meterProvider)
	config = config.WithDefaults()

	webhookOpts := append([]WebhookOption{
		WithWebhookLogger(logger),
		WithWebhookTelemetry(telemetry),
	}, o.webhookOpts...)

	return &Client{
		config:    config,
		transport: transport,
		logger:    logger,
		telemetry: telemetry,
		waiter: NewWaiter(transport,
			WithWaiterLogger(logger),
			WithWaiterTelemetry(telemetry),
			WithWaiterStatusPolicy(o.policy),
		),
		webhooks: NewWebhookParser(config.WebhookSecret, webhookOpts...),
	}, nil
}

// Config returns a copy of the client configuration
func (c *Client) Config() Config {
	return c.config
}

// SignatureHeader returns the header webhook signatures are read from
func (c *Client) SignatureHeader() string {
	return c.config.SignatureHeader
}

// ============================================================================
// Payments
// ============================================================================

// CreatePayment creates a payment. The request and any idempotency key are validated before
// the transport is called. The returned payment's reward metadata is locked for its lifetime.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest, opts ...CallOption) (*Payment, error) {
	key, err := resolveCallOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	payment, err := c.transport.CreatePayment(ctx, req, key)
	if err != nil {
		c.logger.Debug("create payment failed", zap.Error(err), zap.Bool("idempotent", key != ""))
		return nil, err
	}
	if payment == nil || payment.ID == "" {
		return nil, &Error{Kind: KindServer, Message: "service returned a payment without an id"}
	}

	c.logger.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("amount", payment.Amount.String()),
		zap.String("currency", payment.Currency),
		zap.Bool("idempotent", key != ""),
	)
	return payment, nil
}

// GetPayment fetches the current snapshot of a payment
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newValidationError("paymentId", "payment id is required", nil)
	}
	return c.transport.GetPayment(ctx, id)
}

// WaitForPayment polls the payment until it is paid or fails; see Waiter.Wait
func (c *Client) WaitForPayment(ctx context.Context, id string, opts WaitOptions) (*Payment, error) {
	return c.waiter.Wait(ctx, id, opts)
}

// ============================================================================
// Balance and withdrawals
// ============================================================================

// GetBalance returns the merchant balances on chain
func (c *Client) GetBalance(ctx context.Context, chain Chain) (*MerchantBalance, error) {
	if !chain.Valid() {
		return nil, newValidationError("chain", "unsupported chain", map[string]interface{}{
			"received": string(chain),
		})
	}
	return c.transport.GetBalance(ctx, chain)
}

// RequestWithdrawal withdraws funds to an external address. The destination address is
// checked against the chain's address format before the transport is called.
func (c *Client) RequestWithdrawal(ctx context.Context, req WithdrawalRequest, opts ...CallOption) (*Withdrawal, error) {
	key, err := resolveCallOptions(opts)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	withdrawal, err := c.transport.RequestWithdrawal(ctx, req, key)
	if err != nil {
		return nil, err
	}
	c.logger.Info("withdrawal requested",
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("chain", string(req.Chain)),
		zap.String("amount", req.Amount.String()),
	)
	return withdrawal, nil
}

// ============================================================================
// Webhooks
// ============================================================================

// VerifyWebhookSignature reports whether signature matches rawBody under the configured secret.
// It returns a configuration error when no webhook secret is configured.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) (bool, error) {
	return VerifySignature(rawBody, signature, c.config.WebhookSecret)
}

// ParseWebhook verifies and decodes a webhook delivery; see WebhookParser.Parse
func (c *Client) ParseWebhook(rawBody []byte, signature string) (*WebhookEvent, error) {
	return c.webhooks.Parse(rawBody, signature)
}
