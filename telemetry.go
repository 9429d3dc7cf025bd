package cryptopay

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the otel instrumentation scope used by this module
const InstrumentationName = "github.com/cryptopay/cryptopay-go"

// Telemetry bundles the tracer and counters shared by the client, waiter and webhook parser.
// Providers default to the otel globals, which are no-ops until the application installs an SDK.
type Telemetry struct {
	Tracer trace.Tracer

	webhookVerifications metric.Int64Counter
	waitPolls            metric.Int64Counter
}

// NewTelemetry creates instruments from the given providers; nil means the otel global provider
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	verifications, err := meter.Int64Counter("cryptopay.webhook.verifications",
		metric.WithDescription("Webhook payloads checked, by result"),
		metric.WithUnit("{webhook}"),
	)
	if err != nil {
		verifications, _ = noop.NewMeterProvider().Meter(InstrumentationName).Int64Counter("cryptopay.webhook.verifications")
	}

	polls, err := meter.Int64Counter("cryptopay.wait.polls",
		metric.WithDescription("Payment fetches issued while waiting for a final state"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		polls, _ = noop.NewMeterProvider().Meter(InstrumentationName).Int64Counter("cryptopay.wait.polls")
	}

	return &Telemetry{
		Tracer:               tp.Tracer(InstrumentationName),
		webhookVerifications: verifications,
		waitPolls:            polls,
	}
}

func (t *Telemetry) recordWebhook(ctx context.Context, result string) {
	t.webhookVerifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (t *Telemetry) recordPoll(ctx context.Context, status PaymentStatus) {
	t.waitPolls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
