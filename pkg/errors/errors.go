// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeProtocolMismatch   = "PROTOCOL_MISMATCH"
	CodeTransportFailure   = "TRANSPORT_FAILURE"
	CodeConfigError        = "CONFIG_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeSnapshotError      = "SNAPSHOT_ERROR"
	CodeDiagnosticsError   = "DIAGNOSTICS_ERROR"
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
	// ErrInvariantViolation marks a violation of one of the data-model
	// invariants (non-negative bounded coordinates, ghost-tail contiguity,
	// identity conservation) caught by a validation scan. These are reported
	// as diagnostics, not propagated as fatal errors, unless the caller
	// chooses otherwise.
	ErrInvariantViolation = New(CodeInvariantViolation, "invariant violation")
	// ErrProtocolMismatch marks a wire decode whose declared counts don't
	// match the bytes actually available.
	ErrProtocolMismatch = New(CodeProtocolMismatch, "protocol mismatch")
	// ErrTransportFailure marks a failure in the rank network substrate
	// itself, as opposed to a problem with the data carried over it.
	ErrTransportFailure = New(CodeTransportFailure, "transport failure")
	ErrConfigError      = New(CodeConfigError, "configuration error")
	ErrInvalidInput     = New(CodeInvalidInput, "invalid input")
	ErrTimeout          = New(CodeTimeout, "operation timeout")
	ErrNotFound         = New(CodeNotFound, "resource not found")
	ErrSnapshotError    = New(CodeSnapshotError, "snapshot error")
	ErrDiagnosticsError = New(CodeDiagnosticsError, "diagnostics error")
)

// IsInvariantViolation checks if the error is an invariant violation.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsProtocolMismatch checks if the error is a protocol mismatch.
func IsProtocolMismatch(err error) bool {
	return errors.Is(err, ErrProtocolMismatch)
}

// IsTransportFailure checks if the error is a transport failure.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}

// IsSnapshotError checks if the error is a snapshot error.
func IsSnapshotError(err error) bool {
	return errors.Is(err, ErrSnapshotError)
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

// ErrorInfo provides error information mapping.
var ErrorInfo = map[string]string{
	"InvariantViolation": CodeInvariantViolation,
	"ProtocolMismatch":   CodeProtocolMismatch,
	"TransportFailure":   CodeTransportFailure,
	"ConfigError":        CodeConfigError,
	"SnapshotError":      CodeSnapshotError,
}
