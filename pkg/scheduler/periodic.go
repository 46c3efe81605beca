// Package scheduler triggers background key fetches on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobRuns tracks scheduled job executions by outcome
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_scheduled_runs_total",
			Help: "Total number of scheduled job runs by outcome",
		},
		[]string{"job", "outcome"}, // outcome: "ok", "error"
	)

	// JobDuration tracks scheduled job duration
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "keyfetch_scheduled_run_duration_seconds",
			Help:    "Scheduled job duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"job"},
	)
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Periodic runs Job every Interval until its context ends.
type Periodic struct {
	// Name labels logs and metrics.
	Name string

	// Interval between runs. Must be positive.
	Interval time.Duration

	// RunOnStart runs the job once before the first tick.
	RunOnStart bool

	// Job is the work to run.
	Job Job
}

// Run blocks until ctx is done. A failing run is logged and the next attempt
// waits for the following tick, so failures never cause a burst of retries.
// Runs never overlap.
func (p Periodic) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}
	if p.Job == nil {
		return errors.New("scheduler job is required")
	}

	logger := logging.NewLogger("scheduler").With().Str("job", p.Name).Logger()
	logger.Info().Dur("interval", p.Interval).Bool("run_on_start", p.RunOnStart).Msg("Scheduler started")

	if p.RunOnStart {
		p.runOnce(ctx)
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p Periodic) runOnce(ctx context.Context) {
	logger := logging.NewLogger("scheduler").With().Str("job", p.Name).Logger()

	start := time.Now()
	err := p.Job(ctx)
	JobDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		JobRuns.WithLabelValues(p.Name, "error").Inc()
		logger.Error().Err(err).Msg("Scheduled run failed, waiting for next tick")
		return
	}
	JobRuns.WithLabelValues(p.Name, "ok").Inc()
	logger.Debug().Dur("duration", time.Since(start)).Msg("Scheduled run finished")
}
