package keystore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationDuration tracks store latency by backend and operation
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyfetch_store_operation_duration_seconds",
			Help:    "Key store operation duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"backend", "operation"},
	)

	// OperationErrors tracks failed store operations
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_store_operation_errors_total",
			Help: "Total number of failed key store operations",
		},
		[]string{"backend", "operation"},
	)
)

// Observe records one operation. Call it deferred with a pointer to the
// named error result.
func Observe(backend, operation string, start time.Time, err *error) {
	OperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	if err != nil && *err != nil {
		OperationErrors.WithLabelValues(backend, operation).Inc()
	}
}
