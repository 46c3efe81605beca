// Package redis provides a keys.Store on Redis, shared by every daemon replica.
//
// Each key is a JSON value at <prefix>key:<id> that Redis expires together
// with the encryption key. A sorted set at <prefix>keys:by_expiry scores
// identifiers by expiry in Unix milliseconds and drives ordering and
// eviction. Writes go through MULTI/EXEC so both structures change together.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/keystore"
	"github.com/redis/go-redis/v9"
)

const (
	backend = "redis"

	// DefaultPrefix namespaces every Redis key the store writes.
	DefaultPrefix = "keyfetch:"
)

// ErrInvalidEntry indicates a stored value could not be decoded.
var ErrInvalidEntry = errors.New("invalid stored key")

// record is the stored JSON shape; times are Unix milliseconds.
type record struct {
	KeyIdentifier string `json:"key_identifier"`
	PublicKey     string `json:"public_key"`
	KeyType       int    `json:"key_type"`
	CreationTime  int64  `json:"creation_time"`
	ExpiryTime    int64  `json:"expiry_time"`
}

// Store handles key persistence with a Redis backend.
type Store struct {
	redis  *redis.Client
	clock  keys.Clock
	prefix string
}

// New creates a store using the system clock and DefaultPrefix.
func New(redisClient *redis.Client) *Store {
	return NewWithClock(redisClient, keys.SystemClock{}, DefaultPrefix)
}

// NewWithClock creates a store with an explicit clock and key prefix.
func NewWithClock(redisClient *redis.Client, clock keys.Clock, prefix string) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{
		redis:  redisClient,
		clock:  clock,
		prefix: prefix,
	}
}

func (s *Store) valueKey(id string) string { return s.prefix + "key:" + id }

func (s *Store) indexKey() string { return s.prefix + "keys:by_expiry" }

// Insert upserts key by its identifier.
func (s *Store) Insert(ctx context.Context, key keys.EncryptionKey) (err error) {
	defer keystore.Observe(backend, "insert", time.Now(), &err)

	data, err := json.Marshal(record{
		KeyIdentifier: key.KeyIdentifier,
		PublicKey:     key.PublicKey,
		KeyType:       int(key.KeyType),
		CreationTime:  key.CreationTime.UnixMilli(),
		ExpiryTime:    key.ExpiryTime.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	// Redis drops the value once the key expires; the index entry stays until
	// DeleteExpiredKeys so eviction counts stay accurate.
	ttl := key.ExpiryTime.Sub(s.clock.Now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.valueKey(key.KeyIdentifier), data, ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(key.ExpiryTime.UnixMilli()),
			Member: key.KeyIdentifier,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis insert %s: %w", key.KeyIdentifier, err)
	}
	return nil
}

// LatestExpiryNKeys returns at most n active keys, furthest expiry first.
func (s *Store) LatestExpiryNKeys(ctx context.Context, n int) (_ []keys.EncryptionKey, err error) {
	defer keystore.Observe(backend, "latest", time.Now(), &err)

	if n <= 0 {
		return []keys.EncryptionKey{}, nil
	}

	ids, err := s.redis.ZRevRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Max:   "+inf",
		Min:   "(" + strconv.FormatInt(s.clock.Now().UnixMilli(), 10),
		Count: int64(n),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrangebyscore: %w", err)
	}
	if len(ids) == 0 {
		return []keys.EncryptionKey{}, nil
	}

	valueKeys := make([]string, len(ids))
	for i, id := range ids {
		valueKeys[i] = s.valueKey(id)
	}
	values, err := s.redis.MGet(ctx, valueKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	out := make([]keys.EncryptionKey, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Value already expired in Redis; the index entry is stale.
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrInvalidEntry, ids[i], err)
		}
		out = append(out, keys.EncryptionKey{
			KeyIdentifier: rec.KeyIdentifier,
			PublicKey:     rec.PublicKey,
			KeyType:       keys.KeyType(rec.KeyType),
			CreationTime:  time.UnixMilli(rec.CreationTime),
			ExpiryTime:    time.UnixMilli(rec.ExpiryTime),
		})
	}
	return out, nil
}

// DeleteExpiredKeys removes keys whose expiry is before now.
func (s *Store) DeleteExpiredKeys(ctx context.Context) (_ int, err error) {
	defer keystore.Observe(backend, "delete_expired", time.Now(), &err)

	ids, err := s.redis.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(s.clock.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	return s.remove(ctx, ids)
}

// DeleteAllKeys removes every key the store wrote.
func (s *Store) DeleteAllKeys(ctx context.Context) (_ int, err error) {
	defer keystore.Observe(backend, "delete_all", time.Now(), &err)

	ids, err := s.redis.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zrange: %w", err)
	}
	return s.remove(ctx, ids)
}

func (s *Store) remove(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	members := make([]any, len(ids))
	valueKeys := make([]string, len(ids))
	for i, id := range ids {
		members[i] = id
		valueKeys[i] = s.valueKey(id)
	}

	var removed *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, valueKeys...)
		removed = pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis remove keys: %w", err)
	}
	return int(removed.Val()), nil
}
