package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/cache"
	"github.com/Sternrassler/keyfetch/pkg/client"
	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultMaxAgeSeconds is used when the server gives no usable TTL (one week).
const DefaultMaxAgeSeconds int64 = 7 * 24 * 60 * 60

// KeyFetcher retrieves the current key list from the key service.
type KeyFetcher interface {
	FetchKeys(ctx context.Context, keyType KeyType, fetchTime time.Time) ([]EncryptionKey, error)
}

// HTTPExecutor is the part of *client.Client the fetcher needs.
type HTTPExecutor interface {
	ExecuteWithRetry(ctx context.Context, req *client.Request, retryLimit int) (*client.Response, error)
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// FetchURL is the key list endpoint. Empty is a configuration error.
	FetchURL string

	// RetryLimit is the number of HTTP attempts per fetch.
	RetryLimit int

	// DefaultMaxAgeSeconds replaces a non-positive server TTL.
	DefaultMaxAgeSeconds int64
}

// Fetcher issues the key list request and parses its payload.
type Fetcher struct {
	http   HTTPExecutor
	config FetcherConfig
	logger zerolog.Logger
}

// NewFetcher creates a fetcher. A zero DefaultMaxAgeSeconds falls back to
// DefaultMaxAgeSeconds.
func NewFetcher(httpClient HTTPExecutor, cfg FetcherConfig) *Fetcher {
	if cfg.DefaultMaxAgeSeconds <= 0 {
		cfg.DefaultMaxAgeSeconds = DefaultMaxAgeSeconds
	}
	return &Fetcher{
		http:   httpClient,
		config: cfg,
		logger: logging.NewLogger("key-fetcher"),
	}
}

// keyListPayload is the wire shape {"keys":[{"id":..,"key":..}]}.
type keyListPayload struct {
	Keys *[]keyEntry `json:"keys"`
}

type keyEntry struct {
	ID  *string `json:"id"`
	Key *string `json:"key"`
}

// errMalformedPayload marks a body that cannot be turned into keys.
var errMalformedPayload = errors.New("malformed key list payload")

// FetchKeys fetches and parses the key list.
//
// Only configuration problems and transport errors that survive every retry
// are returned. A non-success final status or a malformed body is logged and
// yields an empty list.
func (f *Fetcher) FetchKeys(ctx context.Context, keyType KeyType, fetchTime time.Time) ([]EncryptionKey, error) {
	logger := f.logger.With().Str("key_type", keyType.String()).Logger()

	if f.config.FetchURL == "" {
		FetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: fetch url is not set", ErrConfiguration)
	}

	req, err := client.NewRequest(f.config.FetchURL, client.MethodGet, nil, nil)
	if err != nil {
		FetchesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	resp, err := f.http.ExecuteWithRetry(ctx, req, f.config.RetryLimit)
	if err != nil {
		FetchesTotal.WithLabelValues("error").Inc()
		if errors.Is(err, client.ErrNoAttempts) {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, fmt.Errorf("fetch key list: %w", err)
	}

	if !client.IsSuccess(resp.StatusCode()) {
		FetchesTotal.WithLabelValues("non_success_status").Inc()
		logger.Warn().
			Int("status", resp.StatusCode()).
			Msg("Key service returned non-success status, no keys fetched")
		return []EncryptionKey{}, nil
	}

	ttl := cache.ResolveTTLSeconds(resp.Header())
	if ttl <= 0 {
		TTLFallbacks.Inc()
		logger.Debug().
			Int64("resolved_ttl_seconds", ttl).
			Int64("default_max_age_seconds", f.config.DefaultMaxAgeSeconds).
			Msg("No usable server TTL, using default max-age")
		ttl = f.config.DefaultMaxAgeSeconds
	}

	payload := resp.Payload()
	if resp.IsCompressed() {
		if payload, err = client.DecompressGzip(payload); err != nil {
			FetchesTotal.WithLabelValues("malformed").Inc()
			logger.Warn().Err(err).Msg("Failed to decompress key list")
			return []EncryptionKey{}, nil
		}
	}

	keys, err := parseKeys(payload, keyType, fetchTime, ttl)
	if err != nil {
		FetchesTotal.WithLabelValues("malformed").Inc()
		logger.Warn().Err(err).Msg("Failed to parse key list")
		return []EncryptionKey{}, nil
	}

	FetchesTotal.WithLabelValues("ok").Inc()
	KeysFetchedTotal.WithLabelValues(keyType.String()).Add(float64(len(keys)))
	logger.Info().
		Int("key_count", len(keys)).
		Int64("ttl_seconds", ttl).
		Msg("Fetched key list")
	return keys, nil
}

// parseKeys turns a key list body into keys created at fetchTime and expiring
// ttlSeconds later. Any invalid entry rejects the whole list.
func parseKeys(payload []byte, keyType KeyType, fetchTime time.Time, ttlSeconds int64) ([]EncryptionKey, error) {
	var body keyListPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedPayload, err)
	}
	if body.Keys == nil {
		return nil, fmt.Errorf("%w: missing keys array", errMalformedPayload)
	}

	creation := TruncateMillis(fetchTime)
	expiry := ExpiryAfter(creation, ttlSeconds)

	keys := make([]EncryptionKey, 0, len(*body.Keys))
	for i, entry := range *body.Keys {
		if entry.ID == nil || entry.Key == nil {
			return nil, fmt.Errorf("%w: entry %d lacks id or key", errMalformedPayload, i)
		}
		key, err := NewEncryptionKey(*entry.ID, *entry.Key, keyType, creation, expiry)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errMalformedPayload, i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
