package client

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewRequest_Validation(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		method      Method
		headers     map[string]string
		body        []byte
		expectError bool
	}{
		{
			name:   "https get",
			uri:    "https://keys.example.com/v1/keys",
			method: MethodGet,
		},
		{
			name:   "http to localhost",
			uri:    "http://localhost:8080/keys",
			method: MethodGet,
		},
		{
			name:   "http to loopback ip",
			uri:    "http://127.0.0.1:9000/keys",
			method: MethodGet,
		},
		{
			name:        "plain http to remote host",
			uri:         "http://keys.example.com/v1/keys",
			method:      MethodGet,
			expectError: true,
		},
		{
			name:        "unsupported scheme",
			uri:         "ftp://keys.example.com/keys",
			method:      MethodGet,
			expectError: true,
		},
		{
			name:        "https without host",
			uri:         "https:///keys",
			method:      MethodGet,
			expectError: true,
		},
		{
			name:        "unsupported method",
			uri:         "https://keys.example.com",
			method:      Method("DELETE"),
			expectError: true,
		},
		{
			name:        "caller supplied content length",
			uri:         "https://keys.example.com",
			method:      MethodPost,
			headers:     map[string]string{"content-length": "3"},
			body:        []byte("abc"),
			expectError: true,
		},
		{
			name:        "body on get",
			uri:         "https://keys.example.com",
			method:      MethodGet,
			body:        []byte("abc"),
			expectError: true,
		},
		{
			name:   "body on put",
			uri:    "https://keys.example.com",
			method: MethodPut,
			body:   []byte("abc"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.uri, tt.method, tt.headers, tt.body)
			if tt.expectError {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("Expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.URI() != tt.uri {
				t.Errorf("URI = %q, want %q", req.URI(), tt.uri)
			}
		})
	}
}

func TestNewRequest_DerivesContentLength(t *testing.T) {
	req, err := NewRequest("https://keys.example.com", MethodPost,
		map[string]string{HeaderContentType: "application/json"}, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	headers := req.Headers()
	if got := headers[HeaderContentLength]; got != "7" {
		t.Errorf("Content-Length = %q, want 7", got)
	}

	// Mutating the copies must not leak back into the request.
	headers[HeaderContentType] = "text/plain"
	body := req.Body()
	body[0] = 'x'
	if req.Headers()[HeaderContentType] != "application/json" {
		t.Error("Headers() returned a shared map")
	}
	if req.Body()[0] != '{' {
		t.Error("Body() returned a shared slice")
	}
}

func TestNewResponse(t *testing.T) {
	if _, err := NewResponse(0, nil); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("NewResponse(0) error = %v, want ErrInvalidResponse", err)
	}

	if _, err := NewResponse(http.StatusOK, nil, WithPayload([]byte("x")), WithPayloadFile("/tmp/x", 1)); !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("payload plus file error = %v, want ErrInvalidResponse", err)
	}

	resp, err := NewResponse(http.StatusCreated, nil)
	if err != nil {
		t.Fatalf("NewResponse() error = %v", err)
	}
	if resp.Header() == nil {
		t.Error("Header() should default to an empty header")
	}
	if resp.Payload() != nil || resp.PayloadFile() != "" {
		t.Error("Expected no payload")
	}
}

func TestResponse_IsCompressed(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   bool
	}{
		{"no encoding", http.Header{}, false},
		{"gzip", http.Header{"Content-Encoding": {"gzip"}}, true},
		{"lowercase key upper value", http.Header{"content-encoding": {"GZIP"}}, true},
		{"list containing gzip", http.Header{"Content-Encoding": {"br", "x-gzip"}}, true},
		{"other encoding", http.Header{"Content-Encoding": {"br"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := NewResponse(http.StatusOK, tt.header)
			if err != nil {
				t.Fatalf("NewResponse() error = %v", err)
			}
			if got := resp.IsCompressed(); got != tt.want {
				t.Errorf("IsCompressed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSuccess(t *testing.T) {
	for status, want := range map[int]bool{200: true, 201: true, 202: false, 204: false, 304: false, 500: false} {
		if got := IsSuccess(status); got != want {
			t.Errorf("IsSuccess(%d) = %v, want %v", status, got, want)
		}
	}
}
