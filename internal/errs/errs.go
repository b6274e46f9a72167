// internal/errs/errs.go
//
// Error taxonomy shared by the engine, the protocol layer and the server.
//
//   - IllegalMove:   validator rejection; recoverable, reported to the submitter only.
//   - Protocol:      malformed or out-of-order network message; the connection is reset.
//   - Desync:        move-count mismatch between peers; resolved by a full snapshot.
//   - Configuration: invalid board or rules at startup; fatal.
//
// Errors compare by code with errors.Is, so callers can test
// errors.Is(err, errs.IllegalMove) without caring about the reason.
package errs

import (
	"errors"
	"fmt"
)

// Code classifies an error.
type Code string

const (
	CodeIllegalMove   Code = "illegal-move"
	CodeProtocol      Code = "protocol-error"
	CodeDesync        Code = "desync-detected"
	CodeConfiguration Code = "configuration-error"
)

// Sentinels for errors.Is.
var (
	IllegalMove   = &Error{Code: CodeIllegalMove}
	Protocol      = &Error{Code: CodeProtocol}
	Desync        = &Error{Code: CodeDesync}
	Configuration = &Error{Code: CodeConfiguration}
)

// Error is a coded domain error.
type Error struct {
	Code    Code   // Machine-readable class
	Reason  string // Machine-readable detail, e.g. "corner-blocked"
	Message string // Human-readable message for logs
	Cause   error  // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" && e.Cause != nil {
		return (&Error{Code: e.Code, Reason: e.Reason, Message: e.Cause.Error()}).Error()
	}
	switch {
	case e.Message != "" && e.Reason != "":
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Reason, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return string(e.Code)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and a reason.
func New(code Code, reason string) *Error {
	return &Error{Code: code, Reason: reason}
}

// Newf creates an error with a code, a reason and a formatted message.
func Newf(code Code, reason, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error that wraps an underlying cause.
func Wrap(code Code, reason string, cause error) *Error {
	return &Error{Code: code, Reason: reason, Cause: cause}
}

// ReasonOf returns the reason of the first *Error in err's chain, or "".
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
