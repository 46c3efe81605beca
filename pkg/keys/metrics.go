package keys

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks fetch pipeline runs by outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_fetches_total",
			Help: "Total number of key list fetches by outcome",
		},
		[]string{"outcome"}, // "ok", "non_success_status", "malformed", "error"
	)

	// KeysFetchedTotal tracks parsed keys by type
	KeysFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_keys_fetched_total",
			Help: "Total number of keys parsed from key list responses",
		},
		[]string{"key_type"},
	)

	// TTLFallbacks tracks responses without a usable server TTL
	TTLFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyfetch_ttl_fallback_total",
			Help: "Total number of responses that fell back to the default max-age",
		},
	)

	// KeyReads tracks GetOrFetchActiveKeys results
	KeyReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_key_reads_total",
			Help: "Total number of active key reads by cache result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// ForcedFetches tracks the fetch-on-miss wait outcome
	ForcedFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_forced_fetches_total",
			Help: "Total number of forced fetches by wait outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "timeout", "cancelled"
	)

	// KeysEvicted tracks keys removed by scheduled eviction
	KeysEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyfetch_keys_evicted_total",
			Help: "Total number of expired keys deleted",
		},
	)

	// StoreErrors tracks store operation errors
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_store_errors_total",
			Help: "Total number of key store operation errors",
		},
		[]string{"operation"}, // "insert", "read", "delete_expired"
	)
)
