package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Values stored under a delivery key. An in-flight marker is redisInFlight followed by the
// owner token.
const (
	redisInFlight  = "inflight:"
	redisCompleted = "done"
)

// Owner-checked updates of a delivery key. KEYS[1] is the key, ARGV[1] the in-flight marker.
var (
	// ARGV[2] completed value, ARGV[3] TTL in milliseconds
	completeScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0`)

	failScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	return 1
end
return 0`)

	// ARGV[2] lock TTL in milliseconds
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisStore is a DeliveryStore shared through Redis, for deployments with more than one
// webhook receiver.
//
// A delivery is marked in flight with SET NX, an owner token and a lock TTL. While the handler
// runs the lock is renewed every third of its TTL, so only a receiver that dies (or stalls past
// the TTL) releases the key. Complete and Fail only touch a marker carrying their own token.
// Waiters poll the key.
type RedisStore struct {
	client       redis.UniversalClient
	prefix       string
	ttl          time.Duration
	lockTTL      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	renewals map[string]context.CancelFunc
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisTTL sets how long completed deliveries are remembered. Default: 24 hours
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithRedisLockTTL bounds how long an in-flight marker survives without renewal. Default: 30 seconds
func WithRedisLockTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.lockTTL = ttl
	}
}

// WithRedisKeyPrefix sets the key namespace. Default: "cryptopay:webhook:"
func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithRedisPollInterval sets how often waiters check an in-flight key. Default: 50ms
func WithRedisPollInterval(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.pollInterval = d
	}
}

// WithRedisLogger sets the logger lock renewal failures are reported to.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore creates a delivery store backed by client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:       client,
		prefix:       "cryptopay:webhook:",
		ttl:          24 * time.Hour,
		lockTTL:      30 * time.Second,
		pollInterval: 50 * time.Millisecond,
		logger:       zap.NewNop(),
		renewals:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndMark atomically marks the key in flight unless it is already present.
func (s *RedisStore) CheckAndMark(ctx context.Context, key string) (DeliveryStatus, string, error) {
	k := s.prefix + key
	for {
		token := newOwnerToken()
		ok, err := s.client.SetNX(ctx, k, redisInFlight+token, s.lockTTL).Result()
		if err != nil {
			return StatusNotFound, "", fmt.Errorf("failed to mark delivery: %w", err)
		}
		if ok {
			s.startRenewal(k, token)
			return StatusNotFound, token, nil
		}

		val, err := s.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return StatusNotFound, "", fmt.Errorf("failed to read delivery: %w", err)
		}
		if val == redisCompleted {
			return StatusCompleted, "", nil
		}
		return StatusInFlight, "", nil
	}
}

// WaitForResult polls the key until the in-flight delivery completes or releases it.
func (s *RedisStore) WaitForResult(ctx context.Context, key string) (bool, error) {
	k := s.prefix + key
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		val, err := s.client.Get(ctx, k).Result()
		switch {
		case errors.Is(err, redis.Nil):
			return false, nil
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, fmt.Errorf("failed to read delivery: %w", err)
		case val == redisCompleted:
			return true, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// Complete records the key as handled for the store TTL, if token still owns it.
func (s *RedisStore) Complete(ctx context.Context, key, token string) error {
	s.stopRenewal(token)
	n, err := completeScript.Run(ctx, s.client, []string{s.prefix + key},
		redisInFlight+token, redisCompleted, s.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to complete delivery: %w", err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

// Fail deletes the in-flight marker, if token still owns it.
func (s *RedisStore) Fail(ctx context.Context, key, token string) error {
	s.stopRenewal(token)
	n, err := failScript.Run(ctx, s.client, []string{s.prefix + key}, redisInFlight+token).Int()
	if err != nil {
		return fmt.Errorf("failed to release delivery: %w", err)
	}
	if n == 0 {
		return ErrNotOwner
	}
	return nil
}

// startRenewal extends the lock on k every third of the lock TTL until stopRenewal is called
// or the marker is lost.
func (s *RedisStore) startRenewal(k, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.renewals[token] = cancel
	s.mu.Unlock()

	interval := s.lockTTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	go func() {
		defer s.stopRenewal(token)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			n, err := renewScript.Run(ctx, s.client, []string{k}, redisInFlight+token, s.lockTTL.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Warn("failed to renew webhook delivery lock", zap.String("key", k), zap.Error(err))
				continue
			}
			if n == 0 {
				s.logger.Warn("webhook delivery lock lost", zap.String("key", k))
				return
			}
		}
	}()
}

func (s *RedisStore) stopRenewal(token string) {
	s.mu.Lock()
	cancel, ok := s.renewals[token]
	delete(s.renewals, token)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Ensure RedisStore implements DeliveryStore
var _ DeliveryStore = (*RedisStore)(nil)
