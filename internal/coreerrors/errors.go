// Package coreerrors defines the error taxonomy surfaced to callers of the
// HTTP API, per spec.md §6 and §7.
package coreerrors

import "errors"

// Code classifies an error for the surrounding service layer to map onto a
// transport-specific status (HTTP status codes, gRPC codes, etc).
type Code string

const (
	CodeNotFound  Code = "NotFound"
	CodeConflict  Code = "Conflict"
	CodeInvalid   Code = "Invalid"
	CodeRetryable Code = "Retryable"
	CodeFatal     Code = "Fatal"
)

// Error pairs a Code with a human-readable message and an optional wrapped
// cause, so %w-style unwrapping still works for callers that want the
// underlying error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func NotFound(msg string) error  { return &Error{Code: CodeNotFound, Message: msg} }
func Invalid(msg string) error   { return &Error{Code: CodeInvalid, Message: msg} }
func Conflict(msg string) error  { return &Error{Code: CodeConflict, Message: msg} }
func Retryable(msg string, cause error) error {
	return &Error{Code: CodeRetryable, Message: msg, Cause: cause}
}
func Fatal(msg string, cause error) error {
	return &Error{Code: CodeFatal, Message: msg, Cause: cause}
}

// As extracts the Code from err, defaulting to CodeFatal for errors that
// were never classified (a programmer error worth surfacing loudly rather
// than silently mapping to a generic 500 — but never panics).
func As(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeFatal
}
