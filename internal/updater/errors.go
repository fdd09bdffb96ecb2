package updater

import "fmt"

// Code classifies an updater failure so callers can map it to a response.
type Code string

// Failure codes.
const (
	ErrCodeInvalidState   Code = "INVALID_STATE"
	ErrCodeCheckFailed    Code = "CHECK_FAILED"
	ErrCodeNoUpdate       Code = "NO_UPDATE"
	ErrCodeNotFound       Code = "NOT_FOUND"
	ErrCodeApplyFailed    Code = "APPLY_FAILED"
	ErrCodeBackupFailed   Code = "BACKUP_FAILED"
	ErrCodeRollbackFailed Code = "ROLLBACK_FAILED"
	ErrCodeNoBackup       Code = "NO_BACKUP"
	ErrCodeDisabled       Code = "DISABLED"
)

// Error is returned by every Service operation that fails.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return string(e.Code) + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func fail(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}
