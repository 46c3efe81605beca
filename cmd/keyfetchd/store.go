package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/keyfetch/pkg/config"
	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/keystore/memory"
	redisstore "github.com/Sternrassler/keyfetch/pkg/keystore/redis"
	"github.com/Sternrassler/keyfetch/pkg/keystore/sqlite"
	"github.com/redis/go-redis/v9"
)

// openStore builds the configured key store and a function releasing it.
func openStore(ctx context.Context, cfg config.Config) (keys.Store, func() error, error) {
	switch strings.ToLower(cfg.StoreDriver) {
	case config.DriverMemory:
		return memory.New(), func() error { return nil }, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, store.Close, nil

	case config.DriverRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return redisstore.New(redisClient), redisClient.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown store driver %q", keys.ErrConfiguration, cfg.StoreDriver)
	}
}
