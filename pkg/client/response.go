package client

import (
	"fmt"
	"net/http"
	"strings"
)

// Response is an HTTP response whose payload is held in memory or spooled to a file.
type Response struct {
	statusCode     int
	header         http.Header
	payload        []byte
	payloadFile    string
	downloadedSize int64
}

// ResponseOption configures a Response under construction.
type ResponseOption func(*Response)

// WithPayload keeps the response body in memory.
func WithPayload(payload []byte) ResponseOption {
	return func(r *Response) {
		r.payload = payload
	}
}

// WithPayloadFile records the file the response body was spooled into.
func WithPayloadFile(path string, downloadedSize int64) ResponseOption {
	return func(r *Response) {
		r.payloadFile = path
		r.downloadedSize = downloadedSize
	}
}

// NewResponse builds a Response. A zero status code is treated as missing.
func NewResponse(statusCode int, header http.Header, opts ...ResponseOption) (*Response, error) {
	if statusCode == 0 {
		return nil, fmt.Errorf("%w: empty status code", ErrInvalidResponse)
	}
	if header == nil {
		header = http.Header{}
	}

	resp := &Response{
		statusCode: statusCode,
		header:     header,
	}
	for _, opt := range opts {
		opt(resp)
	}

	if resp.payload != nil && resp.payloadFile != "" {
		return nil, fmt.Errorf("%w: payload and payload file are mutually exclusive", ErrInvalidResponse)
	}
	return resp, nil
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int { return r.statusCode }

// Header returns the response headers.
func (r *Response) Header() http.Header { return r.header }

// Payload returns the in-memory body, or nil when the body was spooled to a file.
func (r *Response) Payload() []byte { return r.payload }

// PayloadFile returns the path of the spooled body, if any.
func (r *Response) PayloadFile() string { return r.payloadFile }

// DownloadedSize returns the number of bytes written to PayloadFile.
func (r *Response) DownloadedSize() int64 { return r.downloadedSize }

// IsCompressed reports whether the body is gzip-encoded according to Content-Encoding.
func (r *Response) IsCompressed() bool {
	for key, values := range r.header {
		if !strings.EqualFold(key, HeaderContentEncoding) {
			continue
		}
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), EncodingGzip) {
				return true
			}
		}
	}
	return false
}
