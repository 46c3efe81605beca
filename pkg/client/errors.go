package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrInvalidRequest is returned when a request fails construction-time validation.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidResponse is returned when a response fails construction-time validation.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrNoAttempts is returned when the retry limit permits no attempt at all.
	// Callers must treat it as a configuration error.
	ErrNoAttempts = errors.New("retry limit permits no attempts")

	// ErrRetryExhausted is returned when every attempt failed with a transport error.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrPayloadTooLarge is returned when a response body exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("response payload too large")
)

// TransportError reports the failure of the final HTTP attempt.
type TransportError struct {
	URI      string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s after %d attempts: %v", e.URI, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() []error {
	return []error{ErrRetryExhausted, e.Err}
}

// IsSuccess reports whether a status code is in the success set.
func IsSuccess(statusCode int) bool {
	switch statusCode {
	case 200, 201:
		return true
	default:
		return false
	}
}
