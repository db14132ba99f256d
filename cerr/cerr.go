// Package cerr names the error taxonomy of spec §7 so callers can branch
// on what went wrong with errors.As instead of string matching, the way
// the teacher favors explicit named conditions over opaque codes.
package cerr

import "fmt"

// Kind is one of the error categories from spec §7.
type Kind int

const (
	_ Kind = iota
	StreamNotReady
	NoFreeSlots
	BackendNotAttached
	BackendInitFailed
	StreamCouldNotCreate
	ConfigInvalid
	BufferOverflow
	DrainTimeout
)

func (k Kind) String() string {
	switch k {
	case StreamNotReady:
		return "StreamNotReady"
	case NoFreeSlots:
		return "NoFreeSlots"
	case BackendNotAttached:
		return "BackendNotAttached"
	case BackendInitFailed:
		return "BackendInitFailed"
	case StreamCouldNotCreate:
		return "StreamCouldNotCreate"
	case ConfigInvalid:
		return "ConfigInvalid"
	case BufferOverflow:
		return "BufferOverflow"
	case DrainTimeout:
		return "DrainTimeout"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error of the given kind.
func New(k Kind, msg string) error {
	return &Error{Kind: k, Msg: msg}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(k Kind, msg string, err error) error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	var ce *Error
	for err != nil {
		if e, ok := err.(*Error); ok { //nolint:errorlint
			ce = e
			break
		}
		u, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return ce != nil && ce.Kind == k
}

// GuestInputError marks data that came from untrusted guest-supplied
// input (a BDL entry, a register write). Per spec §9 design notes, a
// handler for this must always downgrade to a log event in release
// builds rather than assert/panic.
type GuestInputError struct {
	Msg string
}

func (e *GuestInputError) Error() string { return "guest input: " + e.Msg }
