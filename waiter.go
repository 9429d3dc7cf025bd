package cryptopay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Wait defaults
const (
	DefaultWaitTimeout  = 10 * time.Minute
	DefaultPollInterval = 5 * time.Second
)

// PaymentFetcher fetches the current snapshot of a payment
type PaymentFetcher interface {
	GetPayment(ctx context.Context, id string) (*Payment, error)
}

// WaitOptions configures a single Wait call
type WaitOptions struct {
	// Timeout bounds the total wait (optional, defaults to 10m)
	Timeout time.Duration

	// PollInterval is the minimum spacing between fetch starts (optional, defaults to 5s)
	PollInterval time.Duration

	// AcceptPartial resolves the wait successfully once the payment is PARTIALLY_PAID
	AcceptPartial bool
}

// Waiter polls a payment until it reaches a final state.
// A Waiter holds no per-call state and may be shared by concurrent Wait calls.
type Waiter struct {
	fetcher   PaymentFetcher
	policy    StatusPolicy
	logger    *zap.Logger
	telemetry *Telemetry
}

// WaiterOption configures a Waiter
type WaiterOption func(*Waiter)

// WithWaiterLogger sets the logger
func WithWaiterLogger(logger *zap.Logger) WaiterOption {
	return func(w *Waiter) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWaiterTelemetry sets the tracer and counters
func WithWaiterTelemetry(t *Telemetry) WaiterOption {
	return func(w *Waiter) {
		if t != nil {
			w.telemetry = t
		}
	}
}

// WithWaiterStatusPolicy sets how PARTIALLY_PAID is classified
func WithWaiterStatusPolicy(policy StatusPolicy) WaiterOption {
	return func(w *Waiter) {
		w.policy = policy
	}
}

// NewWaiter creates a waiter that fetches payments through fetcher
func NewWaiter(fetcher PaymentFetcher, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		fetcher: fetcher,
		policy:  DefaultStatusPolicy,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.telemetry == nil {
		w.telemetry = NewTelemetry(nil, nil)
	}
	return w
}

// Wait polls payment id until it is paid, reaches another final state, the timeout elapses,
// or ctx is cancelled.
//
// Returns:
//   - the paid payment (or the partially paid one, when partial payments are accepted)
//   - KindPaymentFailed carrying the terminal status when the payment ended unpaid
//   - KindTimeout once opts.Timeout has elapsed, wrapping the last fetch error if any
//   - KindCancelled when ctx is done; no fetch is issued after that
//
// Fetches are strictly sequential. Fetch starts are at least opts.PollInterval apart; when a
// fetch outlasts the interval the next one starts as soon as it returns. Each fetch runs under the
// wait deadline, so a fetch still in progress at the deadline (including transport retries) is
// cancelled and Wait fails with a timeout.
//
// Retryable fetch errors (network, request timeout, rate limit, server) are retried on the next
// tick; any other fetch error is returned immediately.
func (w *Waiter) Wait(ctx context.Context, id string, opts WaitOptions) (*Payment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, newValidationError("paymentId", "payment id is required", nil)
	}
	if opts.Timeout < 0 {
		return nil, newValidationError("timeout", "timeout must not be negative", map[string]interface{}{
			"received": opts.Timeout.String(),
		})
	}
	if opts.PollInterval < 0 {
		return nil, newValidationError("pollInterval", "poll interval must not be negative", map[string]interface{}{
			"received": opts.PollInterval.String(),
		})
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultWaitTimeout
	}
	interval := opts.PollInterval
	if interval == 0 {
		interval = DefaultPollInterval
	}

	ctx, span := w.telemetry.Tracer.Start(ctx, "cryptopay.Wait",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("payment.id", id),
			attribute.String("wait.timeout", timeout.String()),
			attribute.String("wait.poll_interval", interval.String()),
		),
	)
	defer span.End()

	payment, fetches, err := w.poll(ctx, id, timeout, interval, opts.AcceptPartial)
	span.SetAttributes(attribute.Int("wait.fetches", fetches))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.status", string(payment.Status)))
	span.SetStatus(codes.Ok, "")
	return payment, nil
}

func (w *Waiter) poll(ctx context.Context, id string, timeout, interval time.Duration, acceptPartial bool) (*Payment, int, error) {
	deadline := time.Now().Add(timeout)

	var (
		last    *Payment
		lastErr error
		fetches int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fetches, w.cancelled(id, err)
		}

		fetchStart := time.Now()
		fetchCtx, cancelFetch := context.WithDeadline(ctx, deadline)
		payment, err := w.fetcher.GetPayment(fetchCtx, id)
		cutOff := errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
		cancelFetch()
		fetches++

		if err == nil && payment == nil {
			err = &Error{
				Kind:      KindPayloadMalformed,
				Message:   "fetcher returned no payment",
				PaymentID: id,
			}
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fetches, w.cancelled(id, ctxErr)
			}
			if cutOff {
				// report the last real failure, not the deadline itself
				return nil, fetches, w.timedOut(id, timeout, fetches, last, lastErr)
			}
			if !IsRetryable(err) {
				return nil, fetches, err
			}
			lastErr = err
			w.logger.Warn("payment fetch failed; retrying on next tick",
				zap.String("payment_id", id),
				zap.Int("fetch", fetches),
				zap.Error(err),
			)
		} else {
			last, lastErr = payment, nil
			w.telemetry.recordPoll(ctx, payment.Status)
			w.logger.Debug("payment polled",
				zap.String("payment_id", id),
				zap.String("status", string(payment.Status)),
				zap.Int("fetch", fetches),
			)

			if IsPaid(payment) {
				return payment, fetches, nil
			}
			if IsPartiallyPaid(payment) && (acceptPartial || w.policy.PartialPaymentIsFinal) {
				return payment, fetches, nil
			}
			if w.policy.IsFinal(payment) {
				return nil, fetches, &Error{
					Kind:      KindPaymentFailed,
					Message:   fmt.Sprintf("payment ended with status %s", payment.Status),
					PaymentID: id,
					Status:    payment.Status,
					Payment:   payment,
				}
			}
		}

		now := time.Now()
		if !now.Before(deadline) {
			return nil, fetches, w.timedOut(id, timeout, fetches, last, lastErr)
		}

		next := fetchStart.Add(interval)
		expired := false
		if !next.Before(deadline) {
			next = deadline
			expired = true
		}

		if delay := next.Sub(now); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fetches, w.cancelled(id, ctx.Err())
			}
		}

		if expired {
			return nil, fetches, w.timedOut(id, timeout, fetches, last, lastErr)
		}
	}
}

func (w *Waiter) cancelled(id string, cause error) *Error {
	w.logger.Debug("wait cancelled", zap.String("payment_id", id), zap.Error(cause))
	return &Error{
		Kind:      KindCancelled,
		Message:   "wait cancelled by caller",
		PaymentID: id,
		Err:       cause,
	}
}

func (w *Waiter) timedOut(id string, timeout time.Duration, fetches int, last *Payment, lastErr error) *Error {
	e := &Error{
		Kind:      KindTimeout,
		Message:   fmt.Sprintf("payment did not reach a final state within %s", timeout),
		PaymentID: id,
		Details: map[string]interface{}{
			"timeout": timeout.String(),
			"fetches": fetches,
		},
		Payment: last,
		Err:     lastErr,
	}
	if last != nil {
		e.Status = last.Status
	}
	w.logger.Info("wait timed out",
		zap.String("payment_id", id),
		zap.Duration("timeout", timeout),
		zap.Int("fetches", fetches),
	)
	return e
}
