// Package rrrerr carries the small error-kind taxonomy that protocol and
// parser code needs to propagate through boundaries that only understand
// the built-in error interface (event loop callbacks, session storage
// adapters, the HTTP parser).
package rrrerr

import "fmt"

// Kind is one of the orthogonal error classes a core-runtime operation can
// report. Kinds are not bitsets in Go: a call either succeeds or fails with
// exactly one Kind, and callers that need the old bitset behaviour (e.g.
// "soft or internal") test with Is.
type Kind int

const (
	// OK is never itself carried by an *Error value; it exists so code that
	// pattern-matches on Kind has a zero-cost "no error" case to compare
	// against.
	OK Kind = iota
	// Incomplete means a parser needs more bytes before it can make progress.
	Incomplete
	// Soft means the failure is peer-caused: drop this message or close
	// this one connection, nothing else is affected.
	Soft
	// Hard means a local invariant was broken; tear down the owning
	// subsystem.
	Hard
	// Internal is Hard's sibling for failures that originate in our own
	// bookkeeping rather than from untrusted input.
	Internal
	// NotReady signals transient resource exhaustion; the caller may retry.
	NotReady
	// EOF means the peer closed its side cleanly.
	EOF
	// Deleted means the addressed entity (typically an MQTT session) no
	// longer exists.
	Deleted
	// Exit is a cooperative request to stop the event loop.
	Exit
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "OK"
	case Incomplete:
		return "INCOMPLETE"
	case Soft:
		return "SOFT"
	case Hard:
		return "HARD"
	case Internal:
		return "INTERNAL"
	case NotReady:
		return "NOT_READY"
	case EOF:
		return "EOF"
	case Deleted:
		return "DELETED"
	case Exit:
		return "EXIT"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a sentinel-kind error. Wrap it with github.com/pkg/errors at
// package boundaries to keep a cause chain without losing the Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New builds an *Error of the given Kind.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Msg: msg}
}

// Newf builds an *Error of the given Kind with a formatted message.
func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err carries the given Kind. It is named Is (not a
// method) so it composes with errors.As on wrapped causes: callers do
// errors.As(err, &rerr) and then compare rerr.Kind themselves, or call
// rrrerr.Is(err, kind) for the common case.
func Is(err error, k Kind) bool {
	var rerr *Error
	if err == nil {
		return false
	}
	if as, ok := err.(*Error); ok {
		rerr = as
	} else if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
		return Is(unwrapper.Unwrap(), k)
	} else {
		return false
	}
	return rerr.Kind == k
}
