package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/keys"
	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/Sternrassler/keyfetch/pkg/metrics"
)

const maxKeyCount = 100

// keyReader is the read side of *keys.Manager.
type keyReader interface {
	GetOrFetchActiveKeys(ctx context.Context, keyType keys.KeyType, desiredCount int) []keys.EncryptionKey
}

// keysResponse is the body of GET /v1/keys.
type keysResponse struct {
	Keys []keys.EncryptionKey `json:"keys"`
}

func newMux(reader keyReader, store keys.Store, defaultCount int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler(store))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/v1/keys", keysHandler(reader, defaultCount))
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the key store answers reads.
func readyHandler(store keys.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if _, err := store.LatestExpiryNKeys(ctx, 1); err != nil {
			http.Error(w, fmt.Sprintf("key store unavailable: %v", err), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

// keysHandler serves active keys, forcing a fetch when none are cached.
//
// Query parameters: count (1..100, default from config), type (default
// encryption).
func keysHandler(reader keyReader, defaultCount int) http.HandlerFunc {
	logger := logging.NewLogger("keys-handler")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		count := defaultCount
		if raw := r.URL.Query().Get("count"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxKeyCount {
				http.Error(w, fmt.Sprintf("count must be an integer between 1 and %d", maxKeyCount), http.StatusBadRequest)
				return
			}
			count = n
		}

		keyType := keys.KeyTypeEncryption
		if raw := r.URL.Query().Get("type"); raw != "" {
			kt, err := keys.ParseKeyType(raw)
			if err != nil || kt == keys.KeyTypeUndefined {
				http.Error(w, fmt.Sprintf("unsupported key type %q", raw), http.StatusBadRequest)
				return
			}
			keyType = kt
		}

		active := reader.GetOrFetchActiveKeys(r.Context(), keyType, count)
		status := http.StatusOK
		if len(active) == 0 {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(keysResponse{Keys: active}); err != nil {
			logger.Warn().Err(err).Msg("Failed to write keys response")
		}
	}
}
