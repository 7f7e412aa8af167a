package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a OneLife error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrFormat               ErrorCode = "FORMAT"                // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED" // 409
	ErrStorage              ErrorCode = "STORAGE"               // 500
	ErrInternal             ErrorCode = "INTERNAL"              // 500
	ErrUnavailable          ErrorCode = "UNAVAILABLE"           // 503
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewFormat creates a 400 error for a malformed import document.
func NewFormat(msg string) *AppError {
	return &AppError{
		Code:    ErrFormat,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for when a record or file cannot be found.
func NewNotFound(identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewRecordNotFound creates a 404 error for a record id that does not exist.
func NewRecordNotFound(id int64) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("record not found: %d", id),
		Details: map[string]any{"id": id},
	}
}

// NewConfirmationRequired creates a 409 error for an irreversible action
// that has not been confirmed (or whose confirmation expired).
func NewConfirmationRequired(msg string) *AppError {
	return &AppError{
		Code:    ErrConfirmationRequired,
		Status:  409,
		Message: msg,
	}
}

// NewStorage creates a 500 error for a failure of the backing store
// (unavailable, quota exceeded, corrupted schema).
func NewStorage(op string, err error) *AppError {
	msg := op
	if err != nil {
		msg = fmt.Sprintf("%s: %v", op, err)
	}
	return &AppError{
		Code:    ErrStorage,
		Status:  500,
		Message: msg,
		Details: map[string]any{"op": op},
		cause:   err,
	}
}

// NewUnavailable creates a 503 error for an unreachable external service.
func NewUnavailable(service string, err error) *AppError {
	msg := service + " unavailable"
	if err != nil {
		msg = fmt.Sprintf("%s unavailable: %v", service, err)
	}
	return &AppError{
		Code:    ErrUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
