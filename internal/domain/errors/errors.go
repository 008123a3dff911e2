package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeBusiness   ErrorType = "business"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeCompliance ErrorType = "compliance"
	ErrorTypeIntegrity  ErrorType = "integrity"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewBusinessError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeBusiness,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 422,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       "CONFLICT",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// NewInvalidPathError signals a malformed or inconsistent transfer path.
// Evaluation aborts immediately and nothing is recorded.
func NewInvalidPathError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       "INVALID_TRANSFER_PATH",
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewComplianceError(violation, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCompliance,
		Code:       "COMPLIANCE_VIOLATION",
		Message:    message,
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"violation_type": violation},
	}
}

// NewIntegrityError signals a broken audit chain or a hash mismatch.
// Never retryable: it indicates possible tampering and requires
// out-of-band investigation, not a retry.
func NewIntegrityError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeIntegrity,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

// Predefined common errors
var (
	ErrInvalidInput      = NewValidationError("INVALID_INPUT", "Invalid input provided")
	ErrEmptyTransferPath = NewInvalidPathError("transfer path must not be empty")
	ErrRegulationUnknown = NewNotFoundError("regulation")
	ErrRecordNotFound    = NewNotFoundError("audit record")
	ErrLedgerUnavailable = NewExternalError("ledger", "append-only store unavailable")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsInvalidPath reports whether err is an invalid transfer path error.
func IsInvalidPath(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == "INVALID_TRANSFER_PATH"
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
