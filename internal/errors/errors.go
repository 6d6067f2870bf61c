package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents an Almanac error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrInvalidTransition  ErrorCode = "INVALID_TRANSITION"  // 409
	ErrConflict           ErrorCode = "CONFLICT"            // 409
	ErrCancelled          ErrorCode = "CANCELLED"           // 499
	ErrPersistenceFailure ErrorCode = "PERSISTENCE_FAILURE" // 500
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// AlmanacError represents a structured error with code, status, and details.
type AlmanacError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// Cause is the underlying error, if any. It is never shown to API callers.
	Cause error
}

// Error implements the error interface.
func (e *AlmanacError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AlmanacError) Unwrap() error {
	return e.Cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AlmanacError {
	return &AlmanacError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing resource.
// kind names the resource ("project", "task"); identifier is what was looked up.
func NewNotFound(kind, identifier string) *AlmanacError {
	return &AlmanacError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewInvalidTransition creates a 409 error for a task status change outside the lifecycle table.
func NewInvalidTransition(from, to string) *AlmanacError {
	return &AlmanacError{
		Code:    ErrInvalidTransition,
		Status:  409,
		Message: fmt.Sprintf("cannot move task from %q to %q", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *AlmanacError {
	return &AlmanacError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewCancelled creates a 499 error when the caller went away mid-operation.
func NewCancelled(op string) *AlmanacError {
	return &AlmanacError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewPersistenceFailure creates a 500 error for a transaction that could not be committed.
// Nothing from the failed transaction is visible afterwards.
func NewPersistenceFailure(op string, cause error) *AlmanacError {
	msg := op + " failed"
	if cause != nil {
		msg = fmt.Sprintf("%s failed: %v", op, cause)
	}
	return &AlmanacError{
		Code:    ErrPersistenceFailure,
		Status:  500,
		Message: msg,
		Cause:   cause,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AlmanacError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AlmanacError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		Cause:   err,
	}
}

// Is checks if err (or anything it wraps) is an AlmanacError with the given code.
func Is(err error, code ErrorCode) bool {
	var aErr *AlmanacError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}

// As finds the first AlmanacError in err's chain.
func As(err error) (*AlmanacError, bool) {
	var aErr *AlmanacError
	if stderrors.As(err, &aErr) {
		return aErr, true
	}
	return nil, false
}
