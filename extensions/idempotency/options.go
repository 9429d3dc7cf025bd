package idempotency

import (
	"time"

	"go.uber.org/zap"
)

// config holds the configuration for IdempotentHandler.
type config struct {
	ttl          time.Duration
	store        DeliveryStore
	keyGenerator KeyGenerator
	logger       *zap.Logger
}

// Option configures an IdempotentHandler.
type Option func(*config)

// WithTTL sets how long completed deliveries are remembered.
//
// Only applies when using the default InMemoryStore.
// If WithStore is also specified, this option is ignored
// (configure TTL on your custom store instead).
//
// Default: 24 hours
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore sets a custom DeliveryStore implementation.
//
// Use this for shared backends like Redis or a database.
// When specified, WithTTL is ignored (configure TTL on your store).
func WithStore(store DeliveryStore) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithKeyGenerator sets a custom key generation function.
//
// By default the key covers the event type, payment id, status and event timestamp.
// RawBodyKeyGenerator hashes the exact delivered bytes instead.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(c *config) {
		c.keyGenerator = gen
	}
}

// WithLogger sets the logger duplicate deliveries and store failures are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}
