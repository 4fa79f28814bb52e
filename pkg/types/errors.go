package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeConcurrency        ErrorType = "concurrency"
	ErrorTypeStoreUnavailable   ErrorType = "store_unavailable"
	ErrorTypeMatchingInProgress ErrorType = "matching_in_progress"
	ErrorTypeInternal           ErrorType = "internal"
)

// CoreError represents a structured error in the scheduling core
type CoreError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// IsErrorType reports whether err is a CoreError of the given type
func IsErrorType(err error, t ErrorType) bool {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// NewValidationError creates a new validation error
func NewValidationError(code, message string, details map[string]interface{}) *CoreError {
	return &CoreError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(code, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeNotFound,
		Code:    code,
		Message: message,
	}
}

// NewConcurrencyError creates an error for stale-version mutations
func NewConcurrencyError(code, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeConcurrency,
		Code:    code,
		Message: message,
	}
}

// NewStoreUnavailableError creates an error for an unreachable store
func NewStoreUnavailableError(message string, cause error) *CoreError {
	return &CoreError{
		Type:    ErrorTypeStoreUnavailable,
		Code:    ErrCodeStoreUnavailable,
		Message: message,
		Cause:   cause,
	}
}

// NewMatchingInProgressError creates an error for a rejected concurrent run
func NewMatchingInProgressError() *CoreError {
	return &CoreError{
		Type:    ErrorTypeMatchingInProgress,
		Code:    ErrCodeMatchingInProgress,
		Message: "a matching session is already running",
	}
}

// NewConflictError creates an error for an invalid state transition
func NewConflictError(code, message string) *CoreError {
	return &CoreError{
		Type:    ErrorTypeConflict,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(code, message string, cause error) *CoreError {
	return &CoreError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeStaleVersion       = "STALE_VERSION"
	ErrCodeStoreUnavailable   = "STORE_UNAVAILABLE"
	ErrCodeMatchingInProgress = "MATCHING_IN_PROGRESS"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeAlreadyResolved    = "ALREADY_RESOLVED"
)
