package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine and its collaborators.
type ErrorCode string

// Graph build-time error codes
const (
	ErrGraphConfiguration ErrorCode = "GRAPH_CONFIGURATION"
	ErrDuplicateNode      ErrorCode = "DUPLICATE_NODE"
	ErrUnknownNode        ErrorCode = "UNKNOWN_NODE"
)

// Graph run-time error codes
const (
	ErrNodeExecution      ErrorCode = "NODE_EXECUTION"
	ErrRouting            ErrorCode = "ROUTING"
	ErrSchemaViolation    ErrorCode = "SCHEMA_VIOLATION"
	ErrStepBudgetExceeded ErrorCode = "STEP_BUDGET_EXCEEDED"
	ErrCancelled          ErrorCode = "CANCELLED"
)

// Tool error codes
const (
	ErrToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
	ErrToolValidation ErrorCode = "TOOL_VALIDATION"
	ErrToolTimeout    ErrorCode = "TOOL_TIMEOUT"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
)

// LLM error codes
const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST"
	ErrAuthentication  ErrorCode = "AUTHENTICATION"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Coded is implemented by every error that carries an ErrorCode.
type Coded interface {
	ErrorCode() ErrorCode
}

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode implements Coded.
func (e *Error) ErrorCode() ErrorCode {
	return e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the first error code found along the wrap chain.
// Returns "" when no error in the chain carries a code.
func GetErrorCode(err error) ErrorCode {
	var c Coded
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
