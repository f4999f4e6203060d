package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Coordination errors
const (
	// ErrCodeCallbackTimeout indicates no webhook delivery arrived before the deadline.
	ErrCodeCallbackTimeout ErrorCode = "CALLBACK_TIMEOUT"
	// ErrCodeJobTimeout indicates a dispatched remote job exceeded its local wait deadline.
	ErrCodeJobTimeout ErrorCode = "JOB_TIMEOUT"
	// ErrCodeRemoteJobFailed indicates the provider reported a non-success terminal status.
	ErrCodeRemoteJobFailed ErrorCode = "REMOTE_JOB_FAILED"
	// ErrCodeDeliveryUnreachable indicates a best-effort progress/result POST failed.
	ErrCodeDeliveryUnreachable ErrorCode = "DELIVERY_UNREACHABLE"
	// ErrCodeAmbiguousSpeaker indicates reconciliation could not confidently assign a speaker.
	ErrCodeAmbiguousSpeaker ErrorCode = "AMBIGUOUS_SPEAKER"
)

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the service is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to a service.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the client is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a conflict with the current state of the resource.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Validation errors
const (
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
)

// Internal errors
const (
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeExternalService indicates an error from an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeCallbackTimeout:    true,
	ErrCodeJobTimeout:         true,
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeExternalService:    true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
