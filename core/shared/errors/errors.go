package errors

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"io"
	"net"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigParse     ErrorCode = "CONFIG_PARSE"
	ErrCodeValidationError ErrorCode = "VALIDATION_ERROR"

	// Resolution errors
	ErrCodeQueryNotFound ErrorCode = "QUERY_NOT_FOUND"
	ErrCodeQueryDisabled ErrorCode = "QUERY_DISABLED"

	// Execution errors
	ErrCodeDriverUnavailable ErrorCode = "DRIVER_UNAVAILABLE"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeBind              ErrorCode = "BIND_ERROR"
	ErrCodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	ErrCodeTimeout           ErrorCode = "TIMEOUT"
	ErrCodeCanceled          ErrorCode = "CANCELED"
	ErrCodeInternalError     ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wraps an existing error with an error code and message
func WrapError(code ErrorCode, message string, err error) *AppError {
	return NewAppError(code, message, err)
}

// Code returns the code of the first AppError in the chain, or "" if there is none.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return err != nil && Code(err) == code
}

// IsConnectionFatal reports whether err leaves the connection it happened on unusable.
// Every remaining query that shares the connection is skipped after such an error.
func IsConnectionFatal(err error) bool {
	switch Code(err) {
	case ErrCodeConnectionFailed, ErrCodeDriverUnavailable:
		return true
	}
	return false
}

// IsBrokenConnection recognises low-level errors that mean a connection handle died
// underneath a statement, as opposed to the backend rejecting the statement.
func IsBrokenConnection(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, driver.ErrBadConn) || stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr)
}

// Classify turns a raw statement error into an AppError. Deadline expiry becomes a
// timeout, cancellation becomes CANCELED, a dead connection becomes CONNECTION_FAILED,
// anything else is a backend rejection of the statement.
func Classify(message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapError(ErrCodeTimeout, message, err)
	case stderrors.Is(err, context.Canceled):
		return WrapError(ErrCodeCanceled, message, err)
	case IsBrokenConnection(err):
		return WrapError(ErrCodeConnectionFailed, message, err)
	default:
		return WrapError(ErrCodeExecutionFailed, message, err)
	}
}
