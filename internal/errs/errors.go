// Package errs defines the error taxonomy shared by every component of the
// incremental backup engine. A Code is stable across process and wire
// boundaries (it is what gets persisted to the error log and reported
// through the plugin surface); the wrapped cause is for humans.
package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Code identifies the kind of failure, independent of the message text.
// Numeric values are part of the on-the-wire/log contract and must not be
// renumbered.
type Code int32

const (
	InvalidParam Code = iota
	NotInitialized
	OutOfMemory
	FileIO
	Network
	Timeout
	DataCorruption
	PermissionDenied
	DiskFull
	ConnectionLost
	RetryExhausted
	InvalidStateTransition
	BlockNotFound
)

func (c Code) String() string {
	switch c {
	case InvalidParam:
		return "InvalidParam"
	case NotInitialized:
		return "NotInitialized"
	case OutOfMemory:
		return "OutOfMemory"
	case FileIO:
		return "FileIO"
	case Network:
		return "Network"
	case Timeout:
		return "Timeout"
	case DataCorruption:
		return "DataCorruption"
	case PermissionDenied:
		return "PermissionDenied"
	case DiskFull:
		return "DiskFull"
	case ConnectionLost:
		return "ConnectionLost"
	case RetryExhausted:
		return "RetryExhausted"
	case InvalidStateTransition:
		return "InvalidStateTransition"
	case BlockNotFound:
		return "BlockNotFound"
	default:
		return fmt.Sprintf("Code(%d)", int32(c))
	}
}

// Retryable reports whether an operation that failed with this code is
// expected to succeed if retried unchanged after a delay (spec §7).
func (c Code) Retryable() bool {
	switch c {
	case FileIO, Network, Timeout, ConnectionLost:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned across every component and
// plugin boundary in this module.
type Error struct {
	Code Code
	msg  string
	// cause, when present, is the underlying error this one wraps.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is makes errors.Is(err, New(InvalidParam, "")) match any *Error with the
// same Code, regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and a message to an existing error, preserving it as
// the unwrap chain's cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...), cause: errors.Wrap(cause, "")}
}

// CodeOf extracts the Code carried by err, defaulting to Code(-1) (unknown)
// for errors that did not originate in this package.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return -1, false
}
