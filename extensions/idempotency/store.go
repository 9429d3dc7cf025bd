package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	cryptopay "github.com/cryptopay/cryptopay-go"
)

// DeliveryStatus represents the result of checking the store.
type DeliveryStatus int

const (
	// StatusNotFound means the delivery was not seen before; the caller now owns it.
	StatusNotFound DeliveryStatus = iota
	// StatusCompleted means a delivery with this key was already handled.
	StatusCompleted
	// StatusInFlight means another delivery with this key is being handled right now.
	StatusInFlight
)

func (s DeliveryStatus) String() string {
	switch s {
	case StatusNotFound:
		return "not_found"
	case StatusCompleted:
		return "completed"
	case StatusInFlight:
		return "in_flight"
	}
	return "unknown"
}

// ErrNotOwner is returned by Complete and Fail when the in-flight marker no longer belongs to
// the caller's token, because the lock expired and another delivery claimed the key.
var ErrNotOwner = errors.New("idempotency: delivery is no longer owned by this handler")

// DeliveryStore defines the interface for delivery deduplication storage.
// Implementations must be safe for concurrent use, and shared stores must be safe across
// processes.
type DeliveryStore interface {
	// CheckAndMark atomically checks the store and marks the key as in flight if unseen.
	// With StatusNotFound it also returns the owner token that Complete and Fail require.
	CheckAndMark(ctx context.Context, key string) (DeliveryStatus, string, error)

	// WaitForResult waits for an in-flight delivery to finish, respecting ctx.
	//
	// Returns:
	//   - true if the other delivery completed
	//   - false if it failed or its marker expired (caller should try again)
	//   - an error if ctx was cancelled or the store is unavailable
	WaitForResult(ctx context.Context, key string) (bool, error)

	// Complete records the key as handled and releases waiters. It returns ErrNotOwner and
	// leaves the key untouched when token does not hold the in-flight marker.
	Complete(ctx context.Context, key, token string) error

	// Fail removes the in-flight marker without recording the key, releasing waiters.
	// Like Complete, it only acts for the token holding the marker.
	Fail(ctx context.Context, key, token string) error
}

// newOwnerToken returns a random token identifying one claim of a key
func newOwnerToken() string {
	return uuid.NewString()
}

// KeyGenerator derives the deduplication key for a verified event.
type KeyGenerator func(event *cryptopay.WebhookEvent) string

// DefaultKeyGenerator hashes the event type, payment id, payment status and event timestamp.
// Redeliveries of one event share a key; a later status change of the same payment does not.
func DefaultKeyGenerator(event *cryptopay.WebhookEvent) string {
	var ts string
	if !event.Timestamp.IsZero() {
		ts = event.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	parts := []string{string(event.Event), event.Payment.ID, string(event.Payment.Status), ts}
	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// RawBodyKeyGenerator hashes the verified request body.
func RawBodyKeyGenerator(event *cryptopay.WebhookEvent) string {
	hash := sha256.Sum256(event.Raw)
	return hex.EncodeToString(hash[:])
}
