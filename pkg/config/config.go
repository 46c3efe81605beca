// Package config loads the keyfetch daemon configuration from KEYFETCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/client"
	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds every daemon setting.
type Config struct {
	// Key service
	FetchURL             string        `env:"KEYFETCH_FETCH_URL"`
	RetryLimit           int           `env:"KEYFETCH_RETRY_LIMIT" envDefault:"3"`
	InitialBackoff       time.Duration `env:"KEYFETCH_INITIAL_BACKOFF" envDefault:"500ms"`
	MaxBackoff           time.Duration `env:"KEYFETCH_MAX_BACKOFF" envDefault:"10s"`
	RequestTimeout       time.Duration `env:"KEYFETCH_REQUEST_TIMEOUT" envDefault:"30s"`
	DefaultMaxAgeSeconds int64         `env:"KEYFETCH_DEFAULT_MAX_AGE_SECONDS" envDefault:"604800"`

	// Key manager
	ForcedFetchTimeout time.Duration `env:"KEYFETCH_FORCED_FETCH_TIMEOUT" envDefault:"5s"`
	FetchInterval      time.Duration `env:"KEYFETCH_FETCH_INTERVAL" envDefault:"24h"`
	KeyCount           int           `env:"KEYFETCH_KEY_COUNT" envDefault:"1"`
	MaxConcurrency     int64         `env:"KEYFETCH_MAX_CONCURRENCY" envDefault:"4"`

	// Store
	StoreDriver string `env:"KEYFETCH_STORE_DRIVER" envDefault:"memory"`
	SQLitePath  string `env:"KEYFETCH_SQLITE_PATH" envDefault:"keyfetch.sqlite"`
	RedisAddr   string `env:"KEYFETCH_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"KEYFETCH_REDIS_DB" envDefault:"0"`

	// Daemon
	ListenAddr string `env:"KEYFETCH_LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"KEYFETCH_LOG_LEVEL" envDefault:"info"`
	LogPretty  bool   `env:"KEYFETCH_LOG_PRETTY" envDefault:"false"`
}

// Load parses the process environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom is Load over an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.FetchURL == "" {
		errs = append(errs, errors.New("KEYFETCH_FETCH_URL is required"))
	} else if _, err := client.NewRequest(c.FetchURL, client.MethodGet, nil, nil); err != nil {
		errs = append(errs, fmt.Errorf("KEYFETCH_FETCH_URL: %w", err))
	}
	if c.RetryLimit < 1 {
		errs = append(errs, fmt.Errorf("KEYFETCH_RETRY_LIMIT must be positive (got %d)", c.RetryLimit))
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 {
		errs = append(errs, errors.New("backoff durations must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("KEYFETCH_REQUEST_TIMEOUT must be positive (got %s)", c.RequestTimeout))
	}
	if c.DefaultMaxAgeSeconds <= 0 {
		errs = append(errs, fmt.Errorf("KEYFETCH_DEFAULT_MAX_AGE_SECONDS must be positive (got %d)", c.DefaultMaxAgeSeconds))
	}
	if c.ForcedFetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("KEYFETCH_FORCED_FETCH_TIMEOUT must be positive (got %s)", c.ForcedFetchTimeout))
	}
	if c.FetchInterval <= 0 {
		errs = append(errs, fmt.Errorf("KEYFETCH_FETCH_INTERVAL must be positive (got %s)", c.FetchInterval))
	}
	if c.KeyCount < 1 {
		errs = append(errs, fmt.Errorf("KEYFETCH_KEY_COUNT must be positive (got %d)", c.KeyCount))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("KEYFETCH_MAX_CONCURRENCY must be positive (got %d)", c.MaxConcurrency))
	}

	if _, err := logging.ParseLevel(logging.LogLevel(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("KEYFETCH_LOG_LEVEL: %w", err))
	}

	switch strings.ToLower(c.StoreDriver) {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("KEYFETCH_SQLITE_PATH is required for the sqlite driver"))
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("KEYFETCH_REDIS_ADDR is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("KEYFETCH_STORE_DRIVER %q is not one of memory, sqlite, redis", c.StoreDriver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", keys.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// ClientConfig derives the HTTP client configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig()
	cfg.Timeout = c.RequestTimeout
	cfg.Retry.InitialBackoff = c.InitialBackoff
	cfg.Retry.MaxBackoff = c.MaxBackoff
	return cfg
}

// FetcherConfig derives the key fetcher configuration.
func (c Config) FetcherConfig() keys.FetcherConfig {
	return keys.FetcherConfig{
		FetchURL:             c.FetchURL,
		RetryLimit:           c.RetryLimit,
		DefaultMaxAgeSeconds: c.DefaultMaxAgeSeconds,
	}
}

// LoggingConfig derives the logger configuration.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
