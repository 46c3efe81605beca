package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/logging"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"KEYFETCH_FETCH_URL": "https://keys.example.com/v1/keys",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.RetryLimit != 3 {
		t.Errorf("RetryLimit = %d, want 3", cfg.RetryLimit)
	}
	if cfg.DefaultMaxAgeSeconds != 604800 {
		t.Errorf("DefaultMaxAgeSeconds = %d, want 604800", cfg.DefaultMaxAgeSeconds)
	}
	if cfg.ForcedFetchTimeout != 5*time.Second {
		t.Errorf("ForcedFetchTimeout = %v, want 5s", cfg.ForcedFetchTimeout)
	}
	if cfg.FetchInterval != 24*time.Hour {
		t.Errorf("FetchInterval = %v, want 24h", cfg.FetchInterval)
	}
	if cfg.StoreDriver != DriverMemory {
		t.Errorf("StoreDriver = %q, want memory", cfg.StoreDriver)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"KEYFETCH_FETCH_URL":            "https://keys.example.com/v1/keys",
		"KEYFETCH_RETRY_LIMIT":          "5",
		"KEYFETCH_INITIAL_BACKOFF":      "0s",
		"KEYFETCH_STORE_DRIVER":         "redis",
		"KEYFETCH_REDIS_ADDR":           "redis:6379",
		"KEYFETCH_REDIS_DB":             "2",
		"KEYFETCH_LOG_LEVEL":            "debug",
		"KEYFETCH_LOG_PRETTY":           "true",
		"KEYFETCH_KEY_COUNT":            "3",
		"KEYFETCH_MAX_CONCURRENCY":      "8",
		"KEYFETCH_REQUEST_TIMEOUT":      "2s",
		"KEYFETCH_FETCH_INTERVAL":       "1h",
		"KEYFETCH_LISTEN_ADDR":          "127.0.0.1:9090",
		"KEYFETCH_MAX_BACKOFF":          "1s",
		"KEYFETCH_SQLITE_PATH":          "/tmp/unused.sqlite",
		"KEYFETCH_FORCED_FETCH_TIMEOUT": "250ms",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.RetryLimit != 5 || cfg.RedisDB != 2 || cfg.KeyCount != 3 || cfg.MaxConcurrency != 8 {
		t.Errorf("unexpected numeric overrides: %+v", cfg)
	}
	if cfg.ForcedFetchTimeout != 250*time.Millisecond {
		t.Errorf("ForcedFetchTimeout = %v", cfg.ForcedFetchTimeout)
	}

	cc := cfg.ClientConfig()
	if cc.Timeout != 2*time.Second || cc.Retry.InitialBackoff != 0 || cc.Retry.MaxBackoff != time.Second {
		t.Errorf("ClientConfig() = %+v", cc)
	}
	fc := cfg.FetcherConfig()
	if fc.RetryLimit != 5 || fc.FetchURL != "https://keys.example.com/v1/keys" {
		t.Errorf("FetcherConfig() = %+v", fc)
	}
	lc := cfg.LoggingConfig()
	if lc.Level != logging.LevelDebug || !lc.Pretty {
		t.Errorf("LoggingConfig() = %+v", lc)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		environ  map[string]string
		contains string
	}{
		{
			name:     "missing fetch url",
			environ:  map[string]string{},
			contains: "KEYFETCH_FETCH_URL is required",
		},
		{
			name: "zero retry limit",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL":   "https://k.example.com",
				"KEYFETCH_RETRY_LIMIT": "0",
			},
			contains: "KEYFETCH_RETRY_LIMIT",
		},
		{
			name: "unknown driver",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL":    "https://k.example.com",
				"KEYFETCH_STORE_DRIVER": "postgres",
			},
			contains: "postgres",
		},
		{
			name: "empty sqlite path",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL":    "https://k.example.com",
				"KEYFETCH_STORE_DRIVER": "sqlite",
				"KEYFETCH_SQLITE_PATH":  " ",
			},
			contains: "KEYFETCH_SQLITE_PATH",
		},
		{
			name: "zero interval",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL":      "https://k.example.com",
				"KEYFETCH_FETCH_INTERVAL": "0s",
			},
			contains: "KEYFETCH_FETCH_INTERVAL",
		},
		{
			name: "plain http to remote host",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL": "http://keys.example.com/v1/keys",
			},
			contains: "KEYFETCH_FETCH_URL",
		},
		{
			name: "unknown log level",
			environ: map[string]string{
				"KEYFETCH_FETCH_URL": "https://k.example.com",
				"KEYFETCH_LOG_LEVEL": "verbose",
			},
			contains: "KEYFETCH_LOG_LEVEL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !errors.Is(err, keys.ErrConfiguration) {
				t.Errorf("error = %v, want ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestLoadFrom_ParseError(t *testing.T) {
	_, err := LoadFrom(map[string]string{
		"KEYFETCH_FETCH_URL":   "https://k.example.com",
		"KEYFETCH_RETRY_LIMIT": "three",
	})
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("error = %v, want parse env error", err)
	}
}
