package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultForcedFetchTimeout bounds how long a cache miss waits for a fetch.
const DefaultForcedFetchTimeout = 5 * time.Second

// FetchResult is the outcome of FetchAndPersistActiveKeys.
type FetchResult struct {
	Keys []EncryptionKey
	Err  error
}

// ManagerConfig holds the Manager's collaborators.
type ManagerConfig struct {
	// Fetcher retrieves key lists (required).
	Fetcher KeyFetcher

	// Store persists keys (required).
	Store Store

	// Clock stamps fetches (default: SystemClock).
	Clock Clock

	// Executor runs background work (default: NewExecutor(4)).
	Executor *Executor

	// ForcedFetchTimeout bounds the wait on a cache miss (default: 5s).
	ForcedFetchTimeout time.Duration
}

// Manager serves cached keys and keeps the store fresh.
type Manager struct {
	fetcher            KeyFetcher
	store              Store
	clock              Clock
	executor           *Executor
	forcedFetchTimeout time.Duration
	forced             singleflight.Group
	logger             zerolog.Logger
}

// NewManager creates a key manager. It is meant to be constructed once per
// process and shared.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Executor == nil {
		cfg.Executor = NewExecutor(4)
	}
	if cfg.ForcedFetchTimeout <= 0 {
		cfg.ForcedFetchTimeout = DefaultForcedFetchTimeout
	}

	return &Manager{
		fetcher:            cfg.Fetcher,
		store:              cfg.Store,
		clock:              cfg.Clock,
		executor:           cfg.Executor,
		forcedFetchTimeout: cfg.ForcedFetchTimeout,
		logger:             logging.NewLogger("key-manager"),
	}, nil
}

// FetchAndPersistActiveKeys fetches the key list on the executor, upserts
// every key and, for scheduled invocations only, deletes expired keys
// afterwards. It returns at once; the channel yields exactly one result.
//
// Concurrent calls are not serialised: stores upsert by identifier, so two
// overlapping fetches converge on the same rows.
func (m *Manager) FetchAndPersistActiveKeys(ctx context.Context, keyType KeyType, scheduled bool) <-chan FetchResult {
	ch := make(chan FetchResult, 1)
	m.executor.Go(func() {
		defer close(ch)
		keys, err := m.fetchAndPersist(ctx, keyType, scheduled)
		ch <- FetchResult{Keys: keys, Err: err}
	})
	return ch
}

func (m *Manager) fetchAndPersist(ctx context.Context, keyType KeyType, scheduled bool) ([]EncryptionKey, error) {
	logger := m.logger.With().
		Str("key_type", keyType.String()).
		Bool("scheduled", scheduled).
		Logger()

	keys, err := m.fetcher.FetchKeys(ctx, keyType, m.clock.Now())
	if err != nil {
		logger.Error().Err(err).Msg("Key fetch failed")
		return nil, err
	}

	for _, key := range keys {
		if err := m.store.Insert(ctx, key); err != nil {
			StoreErrors.WithLabelValues("insert").Inc()
			logger.Error().Err(err).Str("key_id", key.KeyIdentifier).Msg("Failed to persist key")
			return nil, fmt.Errorf("persist key %s: %w", key.KeyIdentifier, err)
		}
	}
	logger.Debug().Int("key_count", len(keys)).Msg("Persisted fetched keys")

	if scheduled {
		deleted, err := m.store.DeleteExpiredKeys(ctx)
		if err != nil {
			StoreErrors.WithLabelValues("delete_expired").Inc()
			logger.Warn().Err(err).Msg("Failed to delete expired keys")
		} else {
			KeysEvicted.Add(float64(deleted))
			logger.Info().Int("deleted", deleted).Msg("Deleted expired keys")
		}
	}

	return keys, nil
}

// GetOrFetchActiveKeys returns up to desiredCount active keys, furthest
// expiry first.
//
// A non-empty store answers without network access. On an empty store a
// fetch is forced and awaited for at most the forced fetch timeout; the store
// is then read again. Concurrent misses for the same key type share one
// forced fetch. Giving up on the wait does not cancel the fetch, which may
// still persist keys later. Errors are logged, never returned: the result is
// the best state the store holds, possibly empty.
func (m *Manager) GetOrFetchActiveKeys(ctx context.Context, keyType KeyType, desiredCount int) []EncryptionKey {
	logger := m.logger.With().
		Str("key_type", keyType.String()).
		Int("desired_count", desiredCount).
		Logger()

	if desiredCount < 1 {
		logger.Warn().Msg("Desired key count below one, returning no keys")
		return []EncryptionKey{}
	}

	keys := m.readActive(ctx, desiredCount, logger)
	if len(keys) > 0 {
		KeyReads.WithLabelValues("hit").Inc()
		return keys
	}
	KeyReads.WithLabelValues("miss").Inc()
	logger.Info().Msg("No active keys cached, forcing fetch")

	detached := context.WithoutCancel(ctx)
	done := make(chan singleflight.Result, 1)
	m.executor.track(func() {
		done <- <-m.forced.DoChan(keyType.String(), func() (any, error) {
			res := <-m.FetchAndPersistActiveKeys(detached, keyType, false)
			return res.Keys, res.Err
		})
	})

	timer := time.NewTimer(m.forcedFetchTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.Err != nil {
			ForcedFetches.WithLabelValues("failed").Inc()
			logger.Warn().Err(res.Err).Msg("Forced fetch failed")
		} else {
			ForcedFetches.WithLabelValues("completed").Inc()
		}
	case <-timer.C:
		ForcedFetches.WithLabelValues("timeout").Inc()
		logger.Warn().Dur("timeout", m.forcedFetchTimeout).Msg("Forced fetch did not finish in time")
	case <-ctx.Done():
		ForcedFetches.WithLabelValues("cancelled").Inc()
		logger.Warn().Err(ctx.Err()).Msg("Caller gave up waiting for forced fetch")
	}

	return m.readActive(detached, desiredCount, logger)
}

func (m *Manager) readActive(ctx context.Context, n int, logger zerolog.Logger) []EncryptionKey {
	keys, err := m.store.LatestExpiryNKeys(ctx, n)
	if err != nil {
		StoreErrors.WithLabelValues("read").Inc()
		logger.Warn().Err(err).Msg("Failed to read active keys")
		return []EncryptionKey{}
	}
	if keys == nil {
		return []EncryptionKey{}
	}
	return keys
}

// Wait blocks until all background fetches have finished.
func (m *Manager) Wait() {
	m.executor.Wait()
}
