// Package errors provides unified error handling for scribe.
// It implements structured error types with error codes, HTTP status mapping,
// and retryable detection.
package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Coordination error constructors ---

// CallbackTimeout creates an AppError for a webhook wait that expired.
func CallbackTimeout(token string, timeoutMinutes float64) *AppError {
	return &AppError{
		Code: ErrCodeCallbackTimeout, Message: "No callback delivery arrived before the deadline.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"token": token, "timeout_minutes": timeoutMinutes},
	}
}

// JobTimeout creates an AppError for a dispatched job that exceeded its wait deadline.
func JobTimeout(provider string) *AppError {
	return &AppError{
		Code: ErrCodeJobTimeout, Message: fmt.Sprintf("The %s job did not complete before the local wait deadline.", provider),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"provider": provider},
	}
}

// RemoteJobFailed creates an AppError for a provider-reported job failure.
// The remote status and message are surfaced verbatim.
func RemoteJobFailed(provider, status, message string) *AppError {
	return &AppError{
		Code: ErrCodeRemoteJobFailed, Message: fmt.Sprintf("The %s job failed remotely: %s", provider, message),
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"provider": provider, "remote_status": status},
	}
}

// DeliveryUnreachable creates an AppError for a failed best-effort delivery.
// It is logged and counted, never raised to the task.
func DeliveryUnreachable(url string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeDeliveryUnreachable, Message: "Progress delivery to the caller's address failed.",
		HTTPStatus: http.StatusBadGateway, Retryable: false,
		Details: map[string]any{"delivery_url": url}, Cause: cause,
	}
}

// --- Common error constructors ---

// Timeout creates a new AppError for a request that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Conflict creates a new AppError for a conflict with the current state of the resource.
func Conflict(reason string) *AppError {
	return &AppError{
		Code: ErrCodeConflict, Message: reason,
		HTTPStatus: http.StatusConflict, Retryable: false,
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Retryable: false, Details: details,
	}
}

// MissingField creates a new AppError for a missing required field.
func MissingField(field string) *AppError {
	return &AppError{
		Code: ErrCodeMissingField, Message: fmt.Sprintf("Missing required field: %s", field),
		HTTPStatus: http.StatusBadRequest, Retryable: false,
		Details: map[string]any{"field": field},
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service encountered an error.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}
