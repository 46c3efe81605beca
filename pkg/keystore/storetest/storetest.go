// Package storetest holds the contract every keys.Store implementation must
// satisfy. Backend tests call Run with a factory.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a manually advanced keys.Clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at now, truncated to milliseconds.
func NewClock(now time.Time) *Clock {
	return &Clock{now: keys.TruncateMillis(now)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds an empty store reading time from clock.
type Factory func(t *testing.T, clock keys.Clock) keys.Store

// Run executes the contract tests against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("LatestExpiryOrderingAndLimit", func(t *testing.T) { testOrdering(t, newStore) })
	t.Run("UpsertKeepsLatestWrite", func(t *testing.T) { testUpsert(t, newStore) })
	t.Run("ExpiredKeysAreNotActive", func(t *testing.T) { testExpiredHidden(t, newStore) })
	t.Run("DeleteExpiredKeys", func(t *testing.T) { testDeleteExpired(t, newStore) })
	t.Run("DeleteAllKeys", func(t *testing.T) { testDeleteAll(t, newStore) })
	t.Run("NonPositiveCount", func(t *testing.T) { testNonPositiveCount(t, newStore) })
}

func newKey(t *testing.T, id string, created time.Time, validity time.Duration) keys.EncryptionKey {
	t.Helper()

	key, err := keys.NewEncryptionKey(id, "cHViLS"+id, keys.KeyTypeEncryption, created, created.Add(validity))
	require.NoError(t, err)
	return key
}

func ids(list []keys.EncryptionKey) []string {
	out := make([]string, len(list))
	for i, k := range list {
		out[i] = k.KeyIdentifier
	}
	return out
}

func testOrdering(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	now := clock.Now()
	require.NoError(t, store.Insert(ctx, newKey(t, "one-hour", now, time.Hour)))
	require.NoError(t, store.Insert(ctx, newKey(t, "three-hours", now, 3*time.Hour)))
	require.NoError(t, store.Insert(ctx, newKey(t, "two-hours", now, 2*time.Hour)))

	got, err := store.LatestExpiryNKeys(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"three-hours", "two-hours"}, ids(got))

	got, err = store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"three-hours", "two-hours", "one-hour"}, ids(got))

	first := got[0]
	assert.Equal(t, keys.KeyTypeEncryption, first.KeyType)
	assert.Equal(t, "cHViLSthree-hours", first.PublicKey)
	assert.Equal(t, now.UnixMilli(), first.CreationTime.UnixMilli())
	assert.Equal(t, now.Add(3*time.Hour).UnixMilli(), first.ExpiryTime.UnixMilli())
}

func testUpsert(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	now := clock.Now()
	require.NoError(t, store.Insert(ctx, newKey(t, "same", now, time.Hour)))
	require.NoError(t, store.Insert(ctx, newKey(t, "same", now, 5*time.Hour)))

	got, err := store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, now.Add(5*time.Hour).UnixMilli(), got[0].ExpiryTime.UnixMilli())

	// A later write with an earlier expiry still wins.
	require.NoError(t, store.Insert(ctx, newKey(t, "same", now, 30*time.Minute)))
	got, err = store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, now.Add(30*time.Minute).UnixMilli(), got[0].ExpiryTime.UnixMilli())

	deleted, err := store.DeleteAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func testExpiredHidden(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	now := clock.Now()
	require.NoError(t, store.Insert(ctx, newKey(t, "short", now, time.Minute)))
	require.NoError(t, store.Insert(ctx, newKey(t, "long", now, time.Hour)))

	clock.Advance(2 * time.Minute)
	got, err := store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, ids(got))

	clock.Advance(time.Hour)
	got, err = store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testDeleteExpired(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	now := clock.Now()
	require.NoError(t, store.Insert(ctx, newKey(t, "a", now, time.Minute)))
	require.NoError(t, store.Insert(ctx, newKey(t, "b", now, 2*time.Minute)))
	require.NoError(t, store.Insert(ctx, newKey(t, "c", now, time.Hour)))

	// "b" expires exactly now: no longer active, not yet past expiry.
	clock.Advance(2 * time.Minute)
	deleted, err := store.DeleteExpiredKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = store.DeleteExpiredKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	clock.Advance(time.Millisecond)
	deleted, err = store.DeleteExpiredKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	got, err := store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))
}

func testDeleteAll(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	deleted, err := store.DeleteAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	now := clock.Now()
	for _, id := range []string{"x", "y", "z"} {
		require.NoError(t, store.Insert(ctx, newKey(t, id, now, time.Hour)))
	}

	deleted, err = store.DeleteAllKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	got, err := store.LatestExpiryNKeys(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testNonPositiveCount(t *testing.T, newStore Factory) {
	ctx := context.Background()
	clock := NewClock(time.Now())
	store := newStore(t, clock)

	require.NoError(t, store.Insert(ctx, newKey(t, "k", clock.Now(), time.Hour)))

	got, err := store.LatestExpiryNKeys(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
