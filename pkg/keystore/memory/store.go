// Package memory provides an in-process keys.Store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Sternrassler/keyfetch/pkg/keys"
)

// Store keeps keys in a map guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	keys  map[string]keys.EncryptionKey
	clock keys.Clock
}

// New creates an empty store using the system clock.
func New() *Store {
	return NewWithClock(keys.SystemClock{})
}

// NewWithClock creates an empty store that judges expiry with clock.
func NewWithClock(clock keys.Clock) *Store {
	return &Store{
		keys:  make(map[string]keys.EncryptionKey),
		clock: clock,
	}
}

// Insert upserts key by its identifier.
func (s *Store) Insert(_ context.Context, key keys.EncryptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.KeyIdentifier] = key
	return nil
}

// LatestExpiryNKeys returns at most n active keys, furthest expiry first.
func (s *Store) LatestExpiryNKeys(_ context.Context, n int) ([]keys.EncryptionKey, error) {
	if n <= 0 {
		return []keys.EncryptionKey{}, nil
	}

	now := s.clock.Now()
	s.mu.RLock()
	active := make([]keys.EncryptionKey, 0, len(s.keys))
	for _, k := range s.keys {
		if k.IsActive(now) {
			active = append(active, k)
		}
	}
	s.mu.RUnlock()

	sort.Slice(active, func(i, j int) bool {
		if !active[i].ExpiryTime.Equal(active[j].ExpiryTime) {
			return active[i].ExpiryTime.After(active[j].ExpiryTime)
		}
		return active[i].KeyIdentifier < active[j].KeyIdentifier
	})
	if len(active) > n {
		active = active[:n]
	}
	return active, nil
}

// DeleteExpiredKeys removes keys whose expiry is before now.
func (s *Store) DeleteExpiredKeys(_ context.Context) (int, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, k := range s.keys {
		if k.ExpiryTime.Before(now) {
			delete(s.keys, id)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteAllKeys empties the store.
func (s *Store) DeleteAllKeys(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.keys)
	s.keys = make(map[string]keys.EncryptionKey)
	return n, nil
}
