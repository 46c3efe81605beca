package client

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// CompressGzip compresses data with gzip.
func CompressGzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// DecompressGzip reverses CompressGzip.
func DecompressGzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// JoinBaseURIWithSuffix joins a base URI and a path suffix that must start with '/'.
func JoinBaseURIWithSuffix(baseURI, suffix string) (string, error) {
	if suffix == "" || !strings.HasPrefix(suffix, "/") {
		return "", fmt.Errorf("%w: uri suffix must be non-empty with a leading '/'", ErrInvalidRequest)
	}
	return strings.TrimSuffix(baseURI, "/") + suffix, nil
}

// TotalSentBytes estimates the bytes a request puts on the wire.
func TotalSentBytes(req *Request) int64 {
	total := int64(len(req.method) + len(" ") + len(req.uri) + len(" HTTP/1.1\r\n"))
	for key, value := range req.headers {
		total += int64(len(key) + len(": ") + len(value) + len("\r\n"))
	}
	if cl, ok := req.headers[HeaderContentLength]; ok {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			total += n
		}
	}
	return total
}

// TotalReceivedBytes estimates the bytes a response took on the wire.
// Content-Length wins over the observed payload size when present.
func TotalReceivedBytes(resp *Response) int64 {
	var total int64
	foundContentLength := false
	for key, values := range resp.header {
		for _, v := range values {
			total += int64(len(key) + len(": ") + len(v))
		}
		if key == HeaderContentLength && len(values) > 0 {
			if n, err := strconv.ParseInt(values[0], 10, 64); err == nil {
				total += n
				foundContentLength = true
			}
		}
	}
	if !foundContentLength {
		if resp.payload != nil {
			total += int64(len(resp.payload))
		} else if resp.payloadFile != "" {
			total += resp.downloadedSize
		}
	}
	return total
}
