// Package http provides the HTTP transport for the cryptopay client.
// It maps the service's REST API onto cryptopay.Transport and its HTTP statuses onto
// cryptopay error kinds.
package http

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

// ============================================================================
// Constructor functions
// ============================================================================

// NewClient creates a cryptopay client backed by the HTTP transport.
// Logger and tracer provider options apply to both the transport and the client.
func NewClient(config cryptopay.Config, opts ...Option) (*cryptopay.Client, error) {
	transport, err := NewTransport(config, opts...)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts)
	clientOpts := []cryptopay.ClientOption{cryptopay.WithLogger(o.logger)}
	if o.tracerProvider != nil {
		clientOpts = append(clientOpts, cryptopay.WithTracerProvider(o.tracerProvider))
	}
	if o.meterProvider != nil {
		clientOpts = append(clientOpts, cryptopay.WithMeterProvider(o.meterProvider))
	}
	clientOpts = append(clientOpts, o.clientOpts...)

	return cryptopay.NewClient(config, transport, clientOpts...)
}

// ============================================================================
// Options
// ============================================================================

type options struct {
	httpClient     *http.Client
	userAgent      string
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	clientOpts     []cryptopay.ClientOption
}

// Option configures the HTTP transport and the client built by NewClient
type Option func(*options)

func newOptions(opts []Option) *options {
	o := &options{
		userAgent:      DefaultUserAgent,
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: DefaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// WithHTTPClient sets the HTTP client (defaults to one using Config.Timeout)
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(o *options) {
		if userAgent != "" {
			o.userAgent = userAgent
		}
	}
}

// WithMaxRetries sets how many times retryable responses are retried; 0 disables retries
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// WithRetryBaseDelay sets the first backoff delay; later retries double it
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryBaseDelay = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracerProvider sets the tracer provider (defaults to the otel global)
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider used by the client (defaults to the otel global)
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithClientOptions passes options through to cryptopay.NewClient
func WithClientOptions(opts ...cryptopay.ClientOption) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}
