package uas

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy defined for the safety core.
// It intentionally groups by kind rather than by concrete type: every
// component in this module returns one of these kinds wrapped in an
// Error, and callers dispatch with errors.Is against the Err*
// sentinels below rather than type-asserting concrete error types.
type ErrorKind uint8

const (
	// KindNone is the zero value; never actually returned.
	KindNone ErrorKind = iota
	KindLengthError
	KindCRCError
	KindMNRStale
	KindMNRMismatch
	KindSpduIDMismatch
	KindTimeout
	KindOutOfMemory
	KindInvalidParameter
	KindInvalidState
	KindNotFound
	KindNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindLengthError:
		return "length-error"
	case KindCRCError:
		return "crc-error"
	case KindMNRStale:
		return "mnr-stale"
	case KindMNRMismatch:
		return "mnr-mismatch"
	case KindSpduIDMismatch:
		return "spdu-id-mismatch"
	case KindTimeout:
		return "timeout"
	case KindOutOfMemory:
		return "out-of-memory"
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindInvalidState:
		return "invalid-state"
	case KindNotFound:
		return "not-found"
	case KindNotSupported:
		return "not-supported"
	default:
		return "none"
	}
}

// Error is the concrete error type returned throughout the safety
// core. Its Kind is what callers should branch on; Cause and Detail
// carry extra context for logs and are not part of the comparison.
type Error struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind,
// regardless of Detail/Cause. This lets callers write
// errors.Is(err, uas.ErrCRCError) against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind with a formatted detail.
func New(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinel errors for errors.Is comparisons; Detail/Cause are empty on
// these and therefore irrelevant to Is().
var (
	ErrLengthError      = &Error{Kind: KindLengthError}
	ErrCRCError         = &Error{Kind: KindCRCError}
	ErrMNRStale         = &Error{Kind: KindMNRStale}
	ErrMNRMismatch      = &Error{Kind: KindMNRMismatch}
	ErrSpduIDMismatch   = &Error{Kind: KindSpduIDMismatch}
	ErrTimeout          = &Error{Kind: KindTimeout}
	ErrOutOfMemory      = &Error{Kind: KindOutOfMemory}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrNotSupported     = &Error{Kind: KindNotSupported}
)

// KindOf extracts the ErrorKind from err, if err is (or wraps) an
// *Error, along with whether one was found.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindNone, false
}
