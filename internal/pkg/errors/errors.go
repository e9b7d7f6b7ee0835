// Package errors provides HTTP-status-carrying application errors with
// machine-readable reason codes. Handlers convert them into the standard
// response envelope via response.ErrorFrom.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// UnknownMessage is returned to clients for errors that are not *Error.
const UnknownMessage = "internal server error"

// Error is an application error bound to an HTTP status and a stable reason
// code. Message is safe to show to API callers; Metadata carries optional
// structured detail (identifying keys, never secrets).
type Error struct {
	Status   int               `json:"status"`
	Reason   string            `json:"reason"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithMetadata returns a copy of e carrying the given metadata.
func (e *Error) WithMetadata(md map[string]string) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Metadata = md
	return &clone
}

// WithCause returns a copy of e wrapping the underlying error.
func (e *Error) WithCause(err error) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.cause = err
	return &clone
}

// New creates an application error with an explicit HTTP status.
func New(status int, reason, message string) *Error {
	return &Error{Status: status, Reason: reason, Message: message}
}

// Newf creates an application error with a formatted message.
func Newf(status int, reason, format string, args ...any) *Error {
	return &Error{Status: status, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(reason, message string) *Error {
	return New(http.StatusBadRequest, reason, message)
}

func Unauthorized(reason, message string) *Error {
	return New(http.StatusUnauthorized, reason, message)
}

func PaymentRequired(reason, message string) *Error {
	return New(http.StatusPaymentRequired, reason, message)
}

func Forbidden(reason, message string) *Error {
	return New(http.StatusForbidden, reason, message)
}

func NotFound(reason, message string) *Error {
	return New(http.StatusNotFound, reason, message)
}

func Conflict(reason, message string) *Error {
	return New(http.StatusConflict, reason, message)
}

func Internal(reason, message string) *Error {
	return New(http.StatusInternalServerError, reason, message)
}

func ServiceUnavailable(reason, message string) *Error {
	return New(http.StatusServiceUnavailable, reason, message)
}

// FromError extracts the *Error from err, or wraps err as a 500 with
// UnknownMessage so internals never leak to clients.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Reason:  "",
		Message: UnknownMessage,
		cause:   err,
	}
}

// IsReason reports whether err is an application error with the given reason.
func IsReason(err error, reason string) bool {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Reason == reason
	}
	return false
}

// StatusOf returns the HTTP status for err (500 for unknown errors).
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).Status
}
