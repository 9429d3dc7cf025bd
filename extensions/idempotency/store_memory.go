package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore provides an in-memory implementation of DeliveryStore.
//
// This implementation is suitable for single-instance deployments where
// state doesn't need to be shared across processes. For load-balanced
// deployments use RedisStore or another shared DeliveryStore.
//
// Features:
//   - Thread-safe with mutex protection
//   - Configurable TTL for completed deliveries
//   - In-flight tracking with wait channels
//   - Lazy cleanup of expired entries
type InMemoryStore struct {
	mu       sync.Mutex
	expiry   map[string]time.Time
	inFlight map[string]*claim
	ttl      time.Duration
}

// claim is an in-flight delivery and the token of the handler that owns it
type claim struct {
	token string
	done  chan struct{}
}

// NewInMemoryStore creates a new in-memory delivery store with the specified TTL.
//
// The TTL should exceed the service's redelivery window.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]*claim),
		ttl:      ttl,
	}
}

// CheckAndMark atomically checks the store and marks the key as in flight if needed.
func (s *InMemoryStore) CheckAndMark(_ context.Context, key string) (DeliveryStatus, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.completedLocked(key) {
		return StatusCompleted, "", nil
	}

	if _, exists := s.inFlight[key]; exists {
		return StatusInFlight, "", nil
	}

	c := &claim{token: newOwnerToken(), done: make(chan struct{})}
	s.inFlight[key] = c
	return StatusNotFound, c.token, nil
}

// WaitForResult waits for an in-flight delivery to finish, respecting context cancellation.
func (s *InMemoryStore) WaitForResult(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	c, exists := s.inFlight[key]
	if !exists {
		completed := s.completedLocked(key)
		s.mu.Unlock()
		return completed, nil
	}
	s.mu.Unlock()

	select {
	case <-c.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.completedLocked(key), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Complete records the key and signals any waiting goroutines.
func (s *InMemoryStore) Complete(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(key, token) {
		return ErrNotOwner
	}
	s.expiry[key] = time.Now().Add(s.ttl)
	s.releaseLocked(key)

	// Lazy cleanup of expired entries
	s.cleanupExpiredLocked()
	return nil
}

// Fail removes the in-flight marker without recording the key.
func (s *InMemoryStore) Fail(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ownsLocked(key, token) {
		return ErrNotOwner
	}
	s.releaseLocked(key)
	return nil
}

// Len returns the number of remembered deliveries, expired ones included until cleanup.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

// completedLocked reports whether key is recorded and unexpired. Must be called with lock held.
func (s *InMemoryStore) completedLocked(key string) bool {
	expiry, exists := s.expiry[key]
	if !exists {
		return false
	}
	if time.Now().Before(expiry) {
		return true
	}
	delete(s.expiry, key)
	return false
}

// ownsLocked reports whether token holds the in-flight marker for key. Must be called with lock held.
func (s *InMemoryStore) ownsLocked(key, token string) bool {
	c, exists := s.inFlight[key]
	return exists && c.token == token
}

// releaseLocked removes the in-flight marker and wakes waiters. Must be called with lock held.
func (s *InMemoryStore) releaseLocked(key string) {
	if c, exists := s.inFlight[key]; exists {
		delete(s.inFlight, key)
		close(c.done)
	}
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (s *InMemoryStore) cleanupExpiredLocked() {
	now := time.Now()
	for key, expiry := range s.expiry {
		if now.After(expiry) {
			delete(s.expiry, key)
		}
	}
}

// Ensure InMemoryStore implements DeliveryStore
var _ DeliveryStore = (*InMemoryStore)(nil)
