// Package client provides the HTTP message model and a bounded-retry HTTPS
// client used to talk to the remote key service.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for HTTP operations.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfetch_http_requests_total",
		Help: "Total HTTP attempts by method and status",
	}, []string{"method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyfetch_http_request_duration_seconds",
		Help:    "HTTP attempt duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyfetch_http_errors_total",
		Help: "Total failed HTTP attempts by class",
	}, []string{"class"})

	httpBytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyfetch_http_bytes_sent_total",
		Help: "Estimated bytes sent to the key service",
	})

	httpBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyfetch_http_bytes_received_total",
		Help: "Estimated bytes received from the key service",
	})
)

// ErrorClass represents a classification of failed attempts.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassUnexpected represents any other non-success status.
	ErrorClassUnexpected ErrorClass = "unexpected"
)

// Config holds the client configuration.
type Config struct {
	// Timeout bounds a single attempt, connection through body read.
	Timeout time.Duration

	// MaxPayloadBytes caps in-memory response bodies.
	MaxPayloadBytes int64

	// SpoolDir is where ExecuteIntoFileWithRetry writes bodies (default: os.TempDir()).
	SpoolDir string

	// Retry controls the pause between attempts.
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		MaxPayloadBytes: 10 << 20,
		Retry:           DefaultRetryConfig(),
	}
}

// Result is the outcome of an asynchronous request.
type Result struct {
	Response *Response
	Err      error
}

// Client executes Requests with bounded retry.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}
	if cfg.MaxPayloadBytes <= 0 {
		return nil, fmt.Errorf("max payload bytes must be positive (got %d)", cfg.MaxPayloadBytes)
	}
	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				// Content-Encoding is surfaced to callers instead of being decoded here.
				DisableCompression:  true,
				TLSHandshakeTimeout: 5 * time.Second,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		config: cfg,
		logger: logging.NewLogger("http-client"),
	}, nil
}

// ExecuteWithRetry performs req up to retryLimit times.
//
// A success status returns at once. Transport errors are retried and only
// surface, as a *TransportError, when the final attempt fails. Non-success
// statuses are retried too, but when attempts run out without a transport
// error the last response is returned with a nil error: callers must check
// its status code. A retryLimit below one returns ErrNoAttempts.
func (c *Client) ExecuteWithRetry(ctx context.Context, req *Request, retryLimit int) (*Response, error) {
	return c.executeWithRetry(ctx, req, retryLimit, false)
}

// ExecuteIntoFileWithRetry behaves like ExecuteWithRetry but spools successful
// bodies into a temporary file instead of memory.
func (c *Client) ExecuteIntoFileWithRetry(ctx context.Context, req *Request, retryLimit int) (*Response, error) {
	return c.executeWithRetry(ctx, req, retryLimit, true)
}

// Go runs ExecuteWithRetry on a new goroutine and delivers its result.
func (c *Client) Go(ctx context.Context, req *Request, retryLimit int) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := c.ExecuteWithRetry(ctx, req, retryLimit)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

// perform executes a single attempt.
func (c *Client) perform(ctx context.Context, req *Request, spool bool) (*Response, error) {
	method := string(req.Method())
	startTime := time.Now()
	defer func() {
		httpRequestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	var body io.Reader
	if b := req.Body(); len(b) > 0 {
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URI(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for key, value := range req.Headers() {
		if key == HeaderContentLength {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	httpBytesSent.Add(float64(TotalSentBytes(req)))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		httpRequestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, err
	}
	defer httpResp.Body.Close()

	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()

	var resp *Response
	if spool && IsSuccess(httpResp.StatusCode) {
		resp, err = c.spoolResponse(httpResp)
	} else {
		resp, err = c.readResponse(httpResp)
	}
	if err != nil {
		return nil, err
	}

	httpBytesReceived.Add(float64(TotalReceivedBytes(resp)))
	return resp, nil
}

func (c *Client) readResponse(httpResp *http.Response) (*Response, error) {
	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, c.config.MaxPayloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(payload)) > c.config.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, c.config.MaxPayloadBytes)
	}
	return NewResponse(httpResp.StatusCode, httpResp.Header, WithPayload(payload))
}

func (c *Client) spoolResponse(httpResp *http.Response) (*Response, error) {
	f, err := os.CreateTemp(c.config.SpoolDir, "keyfetch-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, httpResp.Body)
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("spool response body: %w", err)
	}
	if n == 0 {
		_ = os.Remove(f.Name())
		return NewResponse(httpResp.StatusCode, httpResp.Header)
	}
	return NewResponse(httpResp.StatusCode, httpResp.Header, WithPayloadFile(f.Name(), n))
}

// classifyError categorizes a failed attempt for observability.
func classifyError(resp *Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case resp.StatusCode() >= 400 && resp.StatusCode() < 500:
		return ErrorClassClient
	case resp.StatusCode() >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

