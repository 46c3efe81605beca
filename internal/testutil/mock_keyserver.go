// Package testutil provides testing utilities for the key fetch client.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/Sternrassler/keyfetch/pkg/client"
	"github.com/google/uuid"
)

// KeysPath is the path the mock serves its key list on.
const KeysPath = "/v1/keys"

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       []byte
	Headers    map[string]string
	Delay      time.Duration
}

// MockKeyServer is a configurable mock key service for testing.
type MockKeyServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	keys     []KeyEntry
	maxAge   int

	// Tracking
	RequestCount int
	lastHeader   http.Header
}

// KeyEntry is one element of the key list wire format.
type KeyEntry struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// NewMockKeyServer creates a mock serving two random keys with max-age=3600.
func NewMockKeyServer() *MockKeyServer {
	mock := &MockKeyServer{
		handlers: make(map[string]http.HandlerFunc),
		keys:     RandomKeys(2),
		maxAge:   3600,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.lastHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockKeyServer) URL() string {
	return m.server.URL
}

// KeysURL returns the URL of the key list endpoint.
func (m *MockKeyServer) KeysURL() string {
	return m.server.URL + KeysPath
}

// Close shuts down the mock server.
func (m *MockKeyServer) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockKeyServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.lastHeader = nil
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockKeyServer) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader.Clone()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockKeyServer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockKeyServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if len(resp.Body) > 0 {
			_, _ = w.Write(resp.Body)
		}
	})
}

// SetKeys replaces the keys served by the default handler.
func (m *MockKeyServer) SetKeys(keys []KeyEntry, maxAge int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = keys
	m.maxAge = maxAge
}

// Keys returns the keys served by the default handler.
func (m *MockKeyServer) Keys() []KeyEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]KeyEntry(nil), m.keys...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockKeyServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

func (m *MockKeyServer) defaultHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != KeysPath {
		http.NotFound(w, r)
		return
	}

	m.mu.RLock()
	resp := NewKeyListResponse(m.keys, m.maxAge, 0)
	m.mu.RUnlock()

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// RandomKeys returns n keys with UUID identifiers and random-looking material.
func RandomKeys(n int) []KeyEntry {
	keys := make([]KeyEntry, n)
	for i := range keys {
		id := uuid.New()
		keys[i] = KeyEntry{
			ID:  id.String(),
			Key: base64.StdEncoding.EncodeToString(id[:]),
		}
	}
	return keys
}

// KeyListBody encodes keys in the key list wire format.
func KeyListBody(keys []KeyEntry) []byte {
	body, err := json.Marshal(struct {
		Keys []KeyEntry `json:"keys"`
	}{Keys: keys})
	if err != nil {
		panic(fmt.Sprintf("marshal key list: %v", err))
	}
	return body
}

// NewKeyListResponse creates a 200 OK key list with Cache-Control and Age.
// A maxAge of zero omits Cache-Control.
func NewKeyListResponse(keys []KeyEntry, maxAge, age int) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
		"Age":          fmt.Sprintf("%d", age),
	}
	if maxAge > 0 {
		headers["Cache-Control"] = fmt.Sprintf("public, max-age=%d", maxAge)
	}
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       KeyListBody(keys),
		Headers:    headers,
	}
}

// NewGzipKeyListResponse is NewKeyListResponse with a gzip-encoded body.
func NewGzipKeyListResponse(keys []KeyEntry, maxAge, age int) MockResponse {
	resp := NewKeyListResponse(keys, maxAge, age)
	compressed, err := client.CompressGzip(resp.Body)
	if err != nil {
		panic(fmt.Sprintf("gzip key list: %v", err))
	}
	resp.Body = compressed
	resp.Headers[client.HeaderContentEncoding] = client.EncodingGzip
	return resp
}

// NewMalformedResponse creates a 200 OK with a body that is not a key list.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`<html>not json</html>`),
		Headers:    map[string]string{"Content-Type": "text/html"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       []byte(`{"error": "Internal server error"}`),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
