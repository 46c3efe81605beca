package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfetch_http_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "keyfetch_http_retry_backoff_seconds",
		Help:    "Backoff duration between attempts",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfetch_http_retry_exhausted_total",
		Help: "Total number of requests whose attempts ran out, by outcome",
	}, []string{"outcome"})
)

// RetryConfig holds the pause configuration between attempts.
type RetryConfig struct {
	// InitialBackoff is the pause after the first failed attempt. Zero disables pausing.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Validate checks the retry configuration.
func (rc RetryConfig) Validate() error {
	if rc.InitialBackoff < 0 || rc.MaxBackoff < 0 {
		return fmt.Errorf("backoff durations must not be negative")
	}
	if rc.InitialBackoff > 0 && rc.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1 (got %v)", rc.BackoffMultiplier)
	}
	return nil
}

func (rc RetryConfig) next(backoff time.Duration) time.Duration {
	backoff = time.Duration(float64(backoff) * rc.BackoffMultiplier)
	if rc.MaxBackoff > 0 && backoff > rc.MaxBackoff {
		backoff = rc.MaxBackoff
	}
	return backoff
}

func (c *Client) executeWithRetry(ctx context.Context, req *Request, retryLimit int, spool bool) (*Response, error) {
	if retryLimit <= 0 {
		return nil, fmt.Errorf("%w (limit %d)", ErrNoAttempts, retryLimit)
	}

	var last *Response
	backoff := c.config.Retry.InitialBackoff

	for attempt := 1; attempt <= retryLimit; attempt++ {
		resp, err := c.perform(ctx, req, spool)
		if err == nil && IsSuccess(resp.StatusCode()) {
			if attempt > 1 {
				c.logger.Info().
					Str("uri", req.URI()).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		errClass := classifyError(resp, err)
		httpErrorsTotal.WithLabelValues(string(errClass)).Inc()

		if err != nil {
			if errors.Is(err, ErrInvalidRequest) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
			}
			if attempt >= retryLimit {
				retryExhaustedTotal.WithLabelValues("transport_error").Inc()
				c.logger.Error().Err(err).
					Str("uri", req.URI()).
					Int("attempts", attempt).
					Msg("Request failed on final attempt")
				return nil, &TransportError{URI: req.URI(), Attempts: attempt, Err: err}
			}
			c.logger.Warn().Err(err).
				Str("uri", req.URI()).
				Int("attempt", attempt).
				Msg("Transport error, retrying")
		} else {
			last = resp
			c.logger.Warn().
				Str("uri", req.URI()).
				Int("attempt", attempt).
				Int("status", resp.StatusCode()).
				Str("error_class", string(errClass)).
				Msg("Non-success status")
		}

		if attempt >= retryLimit {
			break
		}

		retriesTotal.WithLabelValues(string(errClass)).Inc()
		if err := c.pause(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = c.config.Retry.next(backoff)
	}

	retryExhaustedTotal.WithLabelValues("non_success_status").Inc()
	c.logger.Warn().
		Str("uri", req.URI()).
		Int("attempts", retryLimit).
		Int("status", last.StatusCode()).
		Msg("Retry attempts exhausted, returning last response")
	return last, nil
}

// pause waits for backoff with ±20% jitter, honouring cancellation.
func (c *Client) pause(ctx context.Context, backoff time.Duration) error {
	if backoff <= 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		return nil
	}

	jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
	retryBackoffSeconds.Observe(jitter.Seconds())

	c.logger.Debug().Dur("backoff", jitter).Msg("Retrying request after backoff")

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
