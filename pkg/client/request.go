package client

import (
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Method is an HTTP method supported by the client.
type Method string

const (
	MethodGet  Method = http.MethodGet
	MethodPost Method = http.MethodPost
	MethodPut  Method = http.MethodPut
)

// Header names used by the client.
const (
	HeaderContentLength   = "Content-Length"
	HeaderContentEncoding = "Content-Encoding"
	HeaderAcceptEncoding  = "Accept-Encoding"
	HeaderContentType     = "Content-Type"
	EncodingGzip          = "gzip"
)

// Request is an immutable, validated HTTP request description.
type Request struct {
	uri     string
	method  Method
	headers map[string]string
	body    []byte
}

// NewRequest validates its inputs and builds a Request.
//
// The URI must use https, or http against a loopback host. Callers may not
// set Content-Length themselves; it is derived from the body, which is only
// allowed for POST and PUT.
func NewRequest(uri string, method Method, headers map[string]string, body []byte) (*Request, error) {
	if err := validateURI(uri); err != nil {
		return nil, err
	}

	switch method {
	case MethodGet, MethodPost, MethodPut:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, method)
	}

	hdrs := make(map[string]string, len(headers)+1)
	for key, value := range headers {
		if http.CanonicalHeaderKey(key) == HeaderContentLength {
			return nil, fmt.Errorf("%w: Content-Length header must not be provided", ErrInvalidRequest)
		}
		hdrs[key] = value
	}

	var payload []byte
	if len(body) > 0 {
		if method != MethodPost && method != MethodPut {
			return nil, fmt.Errorf("%w: method %s does not allow a request body", ErrInvalidRequest, method)
		}
		payload = append([]byte(nil), body...)
		hdrs[HeaderContentLength] = strconv.Itoa(len(payload))
	}

	return &Request{
		uri:     uri,
		method:  method,
		headers: hdrs,
		body:    payload,
	}, nil
}

func validateURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("%w: malformed uri: %v", ErrInvalidRequest, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		if u.Host == "" {
			return fmt.Errorf("%w: missing host in %q", ErrInvalidRequest, uri)
		}
		return nil
	case "http":
		if isLoopback(u.Hostname()) {
			return nil
		}
	}
	return fmt.Errorf("%w: non-HTTPS URIs are not supported: %s", ErrInvalidRequest, uri)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// URI returns the request target.
func (r *Request) URI() string { return r.uri }

// Method returns the HTTP method.
func (r *Request) Method() Method { return r.method }

// Headers returns a copy of the request headers, including the derived Content-Length.
func (r *Request) Headers() map[string]string { return maps.Clone(r.headers) }

// Body returns a copy of the request body.
func (r *Request) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}
