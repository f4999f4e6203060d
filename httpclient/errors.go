package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies HTTP client errors.
type ErrorCode int

const (
	// ErrCodeTimeout indicates a request or connection timeout.
	ErrCodeTimeout ErrorCode = iota
	// ErrCodeConnection indicates a connection failure (refused, DNS, etc).
	ErrCodeConnection
	// ErrCodeNotFound indicates the resource was not found (404).
	ErrCodeNotFound
	// ErrCodeRateLimit indicates rate limiting (429).
	ErrCodeRateLimit
	// ErrCodeClient indicates a client-side error (other 4xx).
	ErrCodeClient
	// ErrCodeServer indicates a server-side error (5xx).
	ErrCodeServer
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeConnection:
		return "connection"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeRateLimit:
		return "rate_limit"
	case ErrCodeClient:
		return "client"
	case ErrCodeServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is a structured HTTP client error with classification.
type Error struct {
	// StatusCode is the HTTP status code (0 for connection-level errors).
	StatusCode int
	// Code classifies the error.
	Code ErrorCode
	// Message describes the error.
	Message string
	// Retryable indicates whether the operation can be retried.
	Retryable bool
	// Body is the original response body (may be nil).
	Body []byte
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError creates a connection error.
func NewConnectionError(err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
}

// ClassifyStatusCode maps a non-2xx status code to a structured error.
// Returns nil for success codes.
func ClassifyStatusCode(statusCode int, body []byte) *Error {
	switch {
	case statusCode < 400:
		return nil
	case statusCode == http.StatusNotFound:
		return &Error{StatusCode: statusCode, Code: ErrCodeNotFound, Message: "HTTP 404", Body: body}
	case statusCode == http.StatusTooManyRequests:
		return &Error{StatusCode: statusCode, Code: ErrCodeRateLimit, Message: "HTTP 429", Retryable: true, Body: body}
	case statusCode < 500:
		return &Error{StatusCode: statusCode, Code: ErrCodeClient, Message: fmt.Sprintf("HTTP %d", statusCode), Body: body}
	default:
		return &Error{StatusCode: statusCode, Code: ErrCodeServer, Message: fmt.Sprintf("HTTP %d", statusCode), Retryable: true, Body: body}
	}
}

// IsRetryable reports whether an error is a retryable HTTP client error.
func IsRetryable(err error) bool {
	var clientErr *Error
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return false
}
