package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

func testEvent(id string, status cryptopay.PaymentStatus) *cryptopay.WebhookEvent {
	return &cryptopay.WebhookEvent{
		Event:     cryptopay.EventPaymentConfirmed,
		Payment:   cryptopay.Payment{ID: id, Status: status},
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Raw:       []byte(`{"event":"payment.confirmed","payment":{"id":"` + id + `"}}`),
	}
}

func TestDefaultKeyGenerator(t *testing.T) {
	key1 := DefaultKeyGenerator(testEvent("pay_1", cryptopay.StatusConfirmed))
	key2 := DefaultKeyGenerator(testEvent("pay_2", cryptopay.StatusConfirmed))
	key3 := DefaultKeyGenerator(testEvent("pay_1", cryptopay.StatusConfirmed))
	key4 := DefaultKeyGenerator(testEvent("pay_1", cryptopay.StatusPartiallyPaid))

	// Same event should produce same key
	if key1 != key3 {
		t.Errorf("Expected same event to produce same key, got %s and %s", key1, key3)
	}

	// Different payment or status should produce different key
	if key1 == key2 {
		t.Errorf("Expected different payments to produce different keys")
	}
	if key1 == key4 {
		t.Errorf("Expected different statuses to produce different keys")
	}

	// Key should be hex string (64 chars for SHA256)
	if len(key1) != 64 {
		t.Errorf("Expected key to be 64 hex chars, got %d", len(key1))
	}
}

func TestRawBodyKeyGenerator(t *testing.T) {
	if RawBodyKeyGenerator(testEvent("pay_1", "")) == RawBodyKeyGenerator(testEvent("pay_2", "")) {
		t.Error("Expected different bodies to produce different keys")
	}
}

func TestInMemoryStore_CheckAndMark_Completed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "test-key"

	// First call should return NotFound and mark in-flight
	status, token, err := store.CheckAndMark(ctx, key)
	if err != nil || status != StatusNotFound {
		t.Errorf("Expected StatusNotFound, got %v (%v)", status, err)
	}
	if token == "" {
		t.Fatal("Expected an owner token")
	}

	if err := store.Complete(ctx, key, token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Second call should return Completed
	status, _, _ = store.CheckAndMark(ctx, key)
	if status != StatusCompleted {
		t.Errorf("Expected StatusCompleted, got %v", status)
	}
}

func TestInMemoryStore_CheckAndMark_InFlight(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "inflight-test"

	status1, _, _ := store.CheckAndMark(ctx, key)
	if status1 != StatusNotFound {
		t.Errorf("Expected StatusNotFound, got %v", status1)
	}

	status2, token2, _ := store.CheckAndMark(ctx, key)
	if status2 != StatusInFlight {
		t.Errorf("Expected StatusInFlight, got %v", status2)
	}
	if token2 != "" {
		t.Errorf("Expected no token for an in-flight key, got %q", token2)
	}
}

func TestInMemoryStore_RequiresOwnerToken(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "owner-test"

	_, token, _ := store.CheckAndMark(ctx, key)

	if err := store.Complete(ctx, key, "someone-else"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := store.Fail(ctx, key, "someone-else"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if status, _, _ := store.CheckAndMark(ctx, key); status != StatusInFlight {
		t.Errorf("Expected key to stay in flight, got %v", status)
	}

	if err := store.Fail(ctx, key, token); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := store.Complete(ctx, key, token); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner after release, got %v", err)
	}
}

func TestInMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(10 * time.Millisecond)
	key := "expiry-test"

	_, token, _ := store.CheckAndMark(ctx, key)
	store.Complete(ctx, key, token)

	if status, _, _ := store.CheckAndMark(ctx, key); status != StatusCompleted {
		t.Fatalf("Expected StatusCompleted before expiry, got %v", status)
	}

	time.Sleep(20 * time.Millisecond)

	// Expired entry is forgotten, so the next delivery owns the key
	if status, _, _ := store.CheckAndMark(ctx, key); status != StatusNotFound {
		t.Errorf("Expected StatusNotFound after expiry, got %v", status)
	}
}

func TestInMemoryStore_Fail(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "fail-test"

	_, token, _ := store.CheckAndMark(ctx, key)
	store.Fail(ctx, key, token)

	// Failed deliveries are not recorded
	if status, _, _ := store.CheckAndMark(ctx, key); status != StatusNotFound {
		t.Errorf("Expected StatusNotFound after failure, got %v", status)
	}
	if store.Len() != 0 {
		t.Errorf("Expected no recorded deliveries, got %d", store.Len())
	}
}

func TestInMemoryStore_WaitForResult_Success(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "wait-test"

	_, token, _ := store.CheckAndMark(ctx, key)

	go func() {
		time.Sleep(10 * time.Millisecond)
		store.Complete(ctx, key, token)
	}()

	completed, err := store.WaitForResult(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !completed {
		t.Error("Expected completed delivery")
	}
}

func TestInMemoryStore_WaitForResult_Failed(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "wait-fail-test"

	_, token, _ := store.CheckAndMark(ctx, key)

	go func() {
		time.Sleep(10 * time.Millisecond)
		store.Fail(ctx, key, token)
	}()

	completed, err := store.WaitForResult(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if completed {
		t.Error("Expected failed delivery to report not completed")
	}
}

func TestInMemoryStore_WaitForResult_ContextCancelled(t *testing.T) {
	store := NewInMemoryStore(5 * time.Minute)
	key := "cancel-test"

	store.CheckAndMark(context.Background(), key)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := store.WaitForResult(ctx, key)
	if err != context.DeadlineExceeded {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestInMemoryStore_AtomicCheckAndMark(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore(5 * time.Minute)
	key := "atomic-test"

	const goroutines = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	owners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, _ := store.CheckAndMark(ctx, key)
			if status == StatusNotFound {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if owners != 1 {
		t.Errorf("Expected exactly one owner, got %d", owners)
	}
}
