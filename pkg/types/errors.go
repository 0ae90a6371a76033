package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeUpstream       ErrorType = "upstream"
	ErrorTypeInternal       ErrorType = "internal"
)

// ServiceError represents a structured error in the televisit system
type ServiceError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Upstream  string                 `json:"upstream,omitempty"`
	Retryable bool                   `json:"retryable,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error taxonomy to an HTTP status code
func (e *ServiceError) HTTPStatus() int {
	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAuthentication, ErrorTypeAuthorization:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAuthorizationError creates a new authorization error
func NewAuthorizationError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeAuthorization,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConflictError creates a new conflict error for illegal lifecycle
// transitions and lost compare-and-set races
func NewConflictError(code, message string, details map[string]interface{}) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewUpstreamError creates a new upstream collaborator error. The upstream
// name and the retryable flag give callers enough context to decide whether a
// fresh attempt with backoff is safe.
func NewUpstreamError(upstream, code, message string, retryable bool, cause error) *ServiceError {
	return &ServiceError{
		Type:      ErrorTypeUpstream,
		Code:      code,
		Message:   message,
		Upstream:  upstream,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error codes
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeInvalidRole     = "INVALID_ROLE"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeConflict        = "CONFLICT"
	ErrCodePaymentFailed   = "PAYMENT_FAILED"
	ErrCodeUpstreamError   = "UPSTREAM_ERROR"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeEmptyCompletion = "EMPTY_COMPLETION"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// ErrorDecision is the localized classification of an error at a component
// boundary: whether the handler should suppress the underlying cause from the
// response body and which level it should be logged at.
type ErrorDecision struct {
	Suppress bool
	LogLevel string
}

// Classify inspects an error and returns the boundary decision for it.
// Expected request-level failures are logged below error level and surfaced
// as-is; upstream and internal failures are logged at error and the raw cause
// is suppressed from the client response.
func Classify(err error) ErrorDecision {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return ErrorDecision{Suppress: true, LogLevel: "error"}
	}

	switch svcErr.Type {
	case ErrorTypeValidation, ErrorTypeNotFound:
		return ErrorDecision{Suppress: false, LogLevel: "info"}
	case ErrorTypeAuthentication, ErrorTypeAuthorization, ErrorTypeConflict:
		return ErrorDecision{Suppress: false, LogLevel: "warn"}
	case ErrorTypeUpstream:
		return ErrorDecision{Suppress: true, LogLevel: "error"}
	default:
		return ErrorDecision{Suppress: true, LogLevel: "error"}
	}
}

// AsServiceError converts any error into a ServiceError, wrapping unknown
// errors as internal so handlers never leak raw causes to clients.
func AsServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return NewInternalError(ErrCodeInternalError, "internal error", err)
}
