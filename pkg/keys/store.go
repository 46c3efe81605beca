package keys

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrConfiguration is returned when the fetch cannot even be attempted:
	// missing fetch URL, malformed request parameters or a retry limit
	// that permits no attempt.
	ErrConfiguration = errors.New("key fetch configuration error")

	// ErrInvalidKey is returned when key fields violate the model invariants.
	ErrInvalidKey = errors.New("invalid encryption key")
)

// Store persists encryption keys. Implementations provide their own
// atomicity; the Manager performs no locking around them.
type Store interface {
	// Insert upserts key by its identifier.
	Insert(ctx context.Context, key EncryptionKey) error

	// LatestExpiryNKeys returns at most n unexpired keys, furthest expiry first.
	LatestExpiryNKeys(ctx context.Context, n int) ([]EncryptionKey, error)

	// DeleteExpiredKeys removes keys whose expiry is in the past and
	// returns how many were removed.
	DeleteExpiredKeys(ctx context.Context) (int, error)

	// DeleteAllKeys removes every key and returns how many were removed.
	DeleteAllKeys(ctx context.Context) (int, error)
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now.
func (SystemClock) Now() time.Time { return time.Now() }
