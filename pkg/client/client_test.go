package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// roundTripFunc lets tests fail at the transport layer.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = 0
	cfg.SpoolDir = t.TempDir()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func mustRequest(t *testing.T, uri string) *Request {
	t.Helper()

	req, err := NewRequest(uri, MethodGet, nil, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return req
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"zero payload cap", func(c *Config) { c.MaxPayloadBytes = 0 }, true},
		{"negative backoff", func(c *Config) { c.Retry.InitialBackoff = -time.Second }, true},
		{"shrinking multiplier", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }, true},
		{"no backoff any multiplier", func(c *Config) {
			c.Retry.InitialBackoff = 0
			c.Retry.BackoffMultiplier = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.expectError {
				t.Errorf("New() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestExecuteWithRetry_RecoversAfterServerErrors(t *testing.T) {
	statuses := []int{http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusOK}
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.WriteHeader(statuses[n-1])
		_, _ = w.Write([]byte("body"))
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, server.URL), 3)
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode())
	}
	if string(resp.Payload()) != "body" {
		t.Errorf("Payload = %q, want body", resp.Payload())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestExecuteWithRetry_StopsOnFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, server.URL), 5)
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if resp.StatusCode() != http.StatusCreated {
		t.Errorf("StatusCode = %d, want 201", resp.StatusCode())
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecuteWithRetry_ReturnsLastNonSuccessResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, server.URL), 2)
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v, want nil", err)
	}
	if resp.StatusCode() != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", resp.StatusCode())
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestExecuteWithRetry_TransportErrorOnFinalAttempt(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("connection reset")

	c := newTestClient(t)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, boom
	})})

	resp, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, "https://keys.example.com/v1"), 3)
	if resp != nil {
		t.Errorf("Expected nil response, got status %d", resp.StatusCode())
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected *TransportError, got %T: %v", err, err)
	}
	if te.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", te.Attempts)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Error("Expected error to match ErrRetryExhausted")
	}
	if !errors.Is(err, boom) {
		t.Error("Expected error to wrap the transport cause")
	}
}

func TestExecuteWithRetry_TransportErrorThenSuccess(t *testing.T) {
	var calls atomic.Int32

	c := newTestClient(t)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("dial tcp: refused")
		}
		rec := httptest.NewRecorder()
		rec.WriteHeader(http.StatusOK)
		return rec.Result(), nil
	})})

	resp, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, "https://keys.example.com/v1"), 2)
	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode())
	}
}

func TestExecuteWithRetry_NoAttempts(t *testing.T) {
	c := newTestClient(t)
	for _, limit := range []int{0, -1} {
		_, err := c.ExecuteWithRetry(context.Background(), mustRequest(t, "https://keys.example.com"), limit)
		if !errors.Is(err, ErrNoAttempts) {
			t.Errorf("limit %d: error = %v, want ErrNoAttempts", limit, err)
		}
	}
}

func TestExecuteWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = 5 * time.Second
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.ExecuteWithRetry(ctx, mustRequest(t, server.URL), 3)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("error = %v, want ErrContextCancelled", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Cancellation did not interrupt the backoff")
	}
}

func TestExecuteWithRetry_PayloadTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = 0
	cfg.MaxPayloadBytes = 16
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = c.ExecuteWithRetry(context.Background(), mustRequest(t, server.URL), 1)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestExecuteIntoFileWithRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"keys":[]}`))
	}))
	defer server.Close()

	c := newTestClient(t)
	resp, err := c.ExecuteIntoFileWithRetry(context.Background(), mustRequest(t, server.URL), 1)
	if err != nil {
		t.Fatalf("ExecuteIntoFileWithRetry() error = %v", err)
	}
	if resp.Payload() != nil {
		t.Error("Expected no in-memory payload")
	}
	if resp.DownloadedSize() != int64(len(`{"keys":[]}`)) {
		t.Errorf("DownloadedSize = %d", resp.DownloadedSize())
	}

	data, err := os.ReadFile(resp.PayloadFile())
	if err != nil {
		t.Fatalf("read spool file: %v", err)
	}
	if string(data) != `{"keys":[]}` {
		t.Errorf("spooled body = %q", data)
	}
}

func TestGo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := NewRequest(server.URL, MethodGet, map[string]string{"X-Test": "1"}, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	c := newTestClient(t)
	select {
	case res := <-c.Go(context.Background(), req, 1):
		if res.Err != nil {
			t.Fatalf("Go() error = %v", res.Err)
		}
		if res.Response.StatusCode() != http.StatusOK {
			t.Errorf("StatusCode = %d, want 200", res.Response.StatusCode())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Go() did not deliver a result")
	}
}

func TestClassifyError(t *testing.T) {
	mk := func(status int) *Response {
		r, _ := NewResponse(status, nil)
		return r
	}

	tests := []struct {
		name string
		resp *Response
		err  error
		want ErrorClass
	}{
		{"network", nil, errors.New("eof"), ErrorClassNetwork},
		{"4xx", mk(404), nil, ErrorClassClient},
		{"5xx", mk(503), nil, ErrorClassServer},
		{"3xx", mk(304), nil, ErrorClassUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.resp, tt.err); got != tt.want {
				t.Errorf("classifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}
