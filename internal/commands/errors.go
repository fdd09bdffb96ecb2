package commands

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a command does not exist.
var ErrNotFound = errors.New("command not found")

// Error represents a command operation failure with a code the API maps to
// a status.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeNotFound       = "COMMAND_NOT_FOUND"
	ErrCodeInvalidParams  = "INVALID_PARAMS"
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeStoreError     = "STORE_ERROR"
	ErrCodeTimeout        = "TIMEOUT"
)

// NewError creates a new command error.
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// killError converts a failed kill. Giving up on the wait is reported apart
// from store failures.
func killError(id int64, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(ErrCodeTimeout, fmt.Sprintf("timed out stopping command %d", id), err)
	}
	return NewError(ErrCodeStoreError, "failed to stop command", err)
}

// storeError converts a store failure, keeping not-found distinct.
func storeError(id int64, err error) *Error {
	if errors.Is(err, ErrNotFound) {
		return NewError(ErrCodeNotFound, fmt.Sprintf("command %d not found", id), err)
	}
	return NewError(ErrCodeStoreError, "store operation failed", err)
}
