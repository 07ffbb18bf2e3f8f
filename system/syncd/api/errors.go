package api

import (
	"fmt"
)

// Error represents an engine error. Errors match with errors.Is by code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Cause != nil {
		if msg == "" {
			msg = e.Cause.Error()
		} else {
			msg += ": " + e.Cause.Error()
		}
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is implements the errors.Is interface for error matching.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	// Match by code if target has a code
	if t.Code != "" {
		return e.Code == t.Code
	}
	// If target has no code but has message, match by message
	if t.Message != "" {
		return e.Message == t.Message
	}
	return false
}

// Error codes
const (
	// ErrCodeUnknownAnchor: the snapshot id a diff was requested from is
	// not (or no longer) in the stream's history. The client must fetch a
	// full snapshot.
	ErrCodeUnknownAnchor = "unknown_anchor"
	// ErrCodeTypeMismatch: a patch was applied to, or requested against, a
	// representation of a different type.
	ErrCodeTypeMismatch = "type_mismatch"
	// ErrCodeRecompute: a derived value could not be computed.
	ErrCodeRecompute = "recompute_failed"
	// ErrCodeSinkDelivery: a patch could not be pushed to a subscriber.
	ErrCodeSinkDelivery = "sink_delivery"
	// ErrCodeStreamCorrupt: a stream's history is inconsistent.
	ErrCodeStreamCorrupt = "stream_corrupt"
	// ErrCodeStreamClosed: the stream was disposed or never opened.
	ErrCodeStreamClosed = "stream_closed"
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidConfig = "invalid_config"
)

// Sentinels for errors.Is.
var (
	ErrUnknownAnchor = &Error{Code: ErrCodeUnknownAnchor}
	ErrTypeMismatch  = &Error{Code: ErrCodeTypeMismatch}
	ErrRecompute     = &Error{Code: ErrCodeRecompute}
	ErrSinkDelivery  = &Error{Code: ErrCodeSinkDelivery}
	ErrStreamCorrupt = &Error{Code: ErrCodeStreamCorrupt}
	ErrStreamClosed  = &Error{Code: ErrCodeStreamClosed}
	ErrNotFound      = &Error{Code: ErrCodeNotFound}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError creates a new Error with the given code wrapping cause.
func WrapError(code string, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func UnknownAnchor(stream StreamKey, id SnapshotID) *Error {
	return NewError(ErrCodeUnknownAnchor, fmt.Sprintf("snapshot %q not in history of %s", id, stream))
}

func TypeMismatch(want, got string) *Error {
	return NewError(ErrCodeTypeMismatch, fmt.Sprintf("patch targets %q, document is %q", want, got))
}

