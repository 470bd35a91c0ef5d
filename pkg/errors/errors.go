// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
	CodeParseError         = "PARSE_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeIOError            = "IO_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConfigError        = "CONFIG_ERROR"
	CodeStorageError       = "STORAGE_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
)

// Process exit codes, following sysexits(3).
const (
	ExitFailure = 1
	ExitDataErr = 65
	ExitIOErr   = 74
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances.
var (
	ErrUnsupportedVersion = New(CodeUnsupportedVersion, "unsupported hprof version")
	ErrParseError         = New(CodeParseError, "parse error")
	ErrDatabaseError      = New(CodeDatabaseError, "database error")
	ErrIOError            = New(CodeIOError, "i/o error")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConfigError        = New(CodeConfigError, "configuration error")
	ErrStorageError       = New(CodeStorageError, "storage error")
	ErrInvalidInput       = New(CodeInvalidInput, "invalid input")
)

// IsParseError checks if the error is a parse error. Unsupported versions
// count as parse errors.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParseError) || errors.Is(err, ErrUnsupportedVersion)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsIOError checks if the error is an i/o error.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIOError) || errors.Is(err, ErrStorageError)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case IsParseError(err):
		return ExitDataErr
	case IsIOError(err), IsNotFound(err):
		return ExitIOErr
	default:
		return ExitFailure
	}
}
