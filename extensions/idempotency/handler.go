package idempotency

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

// IdempotentHandler wraps a webhook handler so each event is handled at most once.
type IdempotentHandler struct {
	inner        cryptopay.WebhookHandlerFunc
	store        DeliveryStore
	keyGenerator KeyGenerator
	logger       *zap.Logger
}

// Wrap creates an IdempotentHandler around handler.
//
// Default configuration:
//   - InMemoryStore with 24-hour TTL
//   - DefaultKeyGenerator
//
// Pass guard.Handle wherever a cryptopay.WebhookHandlerFunc is expected.
func Wrap(handler cryptopay.WebhookHandlerFunc, opts ...Option) *IdempotentHandler {
	cfg := &config{
		ttl:          24 * time.Hour,
		keyGenerator: DefaultKeyGenerator,
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	store := cfg.store
	if store == nil {
		store = NewInMemoryStore(cfg.ttl)
	}

	return &IdempotentHandler{
		inner:        handler,
		store:        store,
		keyGenerator: cfg.keyGenerator,
		logger:       cfg.logger,
	}
}

// Handle runs the wrapped handler unless an event with the same key was already handled.
//
// A duplicate returns nil so the endpoint acknowledges it. A delivery arriving while another
// with the same key is being handled waits for that one; if it fails, this delivery takes over.
// Store errors are returned so the endpoint answers 5xx and the service redelivers.
func (h *IdempotentHandler) Handle(ctx context.Context, event *cryptopay.WebhookEvent) error {
	key := h.keyGenerator(event)

	var token string
	for {
		status, owner, err := h.store.CheckAndMark(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to check delivery: %w", err)
		}

		switch status {
		case StatusCompleted:
			h.logger.Debug("duplicate webhook delivery skipped",
				zap.String("event", string(event.Event)),
				zap.String("payment_id", event.Payment.ID),
			)
			return nil

		case StatusInFlight:
			completed, err := h.store.WaitForResult(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to wait for in-flight delivery: %w", err)
			}
			if completed {
				return nil
			}
			// The other delivery failed; try to take it over
			continue
		}
		token = owner
		break
	}

	// Store updates must land even when the request context has been cancelled
	storeCtx := context.WithoutCancel(ctx)

	// A panicking handler releases the key so redeliveries can run it again
	defer func() {
		if r := recover(); r != nil {
			h.release(storeCtx, key, token)
			panic(r)
		}
	}()

	if err := h.inner(ctx, event); err != nil {
		h.release(storeCtx, key, token)
		return err
	}

	if err := h.store.Complete(storeCtx, key, token); err != nil {
		h.logger.Warn("failed to record webhook delivery; a redelivery will run the handler again",
			zap.String("payment_id", event.Payment.ID),
			zap.Error(err),
		)
	}
	return nil
}

func (h *IdempotentHandler) release(ctx context.Context, key, token string) {
	if err := h.store.Fail(ctx, key, token); err != nil {
		h.logger.Warn("failed to release webhook delivery", zap.Error(err))
	}
}

// Store returns the underlying delivery store.
func (h *IdempotentHandler) Store() DeliveryStore {
	return h.store
}
