// Package metrics exposes the Prometheus registry shared by all keyfetch
// packages. Metrics are defined next to the code that records them (client,
// keys, keystore, scheduler) via promauto, so this package only documents
// them and serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer promauto uses in every keyfetch package.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the read side of Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves Gatherer in the Prometheus exposition format and counts its
// own scrapes in promhttp_metric_handler_requests_total.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// HTTP Client Metrics (pkg/client):
//   - keyfetch_http_requests_total{method, status} (Counter): Attempts by HTTP status
//   - keyfetch_http_request_duration_seconds{method} (Histogram): Attempt latency
//   - keyfetch_http_errors_total{class} (Counter): Failures by class (client, server, network)
//   - keyfetch_http_bytes_sent_total / keyfetch_http_bytes_received_total (Counter)
//   - keyfetch_http_retries_total{error_class} (Counter): Retry attempts
//   - keyfetch_http_retry_backoff_seconds (Histogram): Pause between attempts
//   - keyfetch_http_retry_exhausted_total{outcome} (Counter): Requests that used every attempt
//
// Key Metrics (pkg/keys):
//   - keyfetch_fetches_total{outcome} (Counter): ok, non_success_status, malformed, error
//   - keyfetch_keys_fetched_total{key_type} (Counter): Parsed keys
//   - keyfetch_ttl_fallback_total (Counter): Responses without usable TTL
//   - keyfetch_key_reads_total{result} (Counter): hit, miss
//   - keyfetch_forced_fetches_total{outcome} (Counter): completed, failed, timeout, cancelled
//   - keyfetch_keys_evicted_total (Counter): Expired keys deleted
//   - keyfetch_store_errors_total{operation} (Counter): Store failures seen by the manager
//
// Store Metrics (pkg/keystore):
//   - keyfetch_store_operation_duration_seconds{backend, operation} (Histogram)
//   - keyfetch_store_operation_errors_total{backend, operation} (Counter)
//
// Scheduler Metrics (pkg/scheduler):
//   - keyfetch_scheduled_runs_total{job, outcome} (Counter)
//   - keyfetch_scheduled_run_duration_seconds{job} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(keyfetch_key_reads_total{result="hit"}[5m])) /
//   sum(rate(keyfetch_key_reads_total[5m]))
//
//   # Forced fetches that did not finish in time
//   rate(keyfetch_forced_fetches_total{outcome="timeout"}[5m])
//
//   # Failing scheduled refreshes
//   increase(keyfetch_scheduled_runs_total{outcome="error"}[1h]) > 0
//
//   # P95 Key Service Latency
//   histogram_quantile(0.95, rate(keyfetch_http_request_duration_seconds_bucket[5m]))
