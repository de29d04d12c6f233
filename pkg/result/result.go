// Package result provides the tagged Ok/Err value every routine and
// suspension outcome in queueio flows through, and the classified
// Error each failure origin wraps its cause in so subscribers can tell
// a routine exception from a queue or transport fault.
package result

import "errors"

// Result is a tagged union of a successful value or an error, carried
// across goroutine and process boundaries instead of a Go panic so
// that a routine's failure is always explicit data (see Completed
// events in package event).
type Result[V any] struct {
	ok      bool
	value   V
	failure error
}

// Ok wraps a successful value.
func Ok[V any](value V) Result[V] {
	return Result[V]{ok: true, value: value}
}

// Err wraps a failure.
func Err[V any](err error) Result[V] {
	return Result[V]{failure: err}
}

// IsOk reports whether the result holds a value rather than an error.
func (r Result[V]) IsOk() bool { return r.ok }

// Unwrap returns the value and error, mirroring a normal Go two-value
// return so callers can write `v, err := r.Unwrap()`.
func (r Result[V]) Unwrap() (V, error) {
	return r.value, r.failure
}

// Value returns the wrapped value, or the zero value if this is an Err.
func (r Result[V]) Value() V { return r.value }

// Error returns the wrapped error, or nil if this is an Ok.
func (r Result[V]) Error() error { return r.failure }

// Kind classifies an Error by where in the system it arose.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindTransport     Kind = "transport"
	KindQueue         Kind = "queue"
	KindRoutine       Kind = "routine"
	KindSuspension    Kind = "suspension"
)

// Error is the structured failure carried by Result's Err side: a
// kind, a message, and the originating exception if there was one.
type Error struct {
	Kind       Kind
	Message    string
	Originator error
}

func (e *Error) Error() string {
	switch {
	case e.Originator == nil:
		return e.Message
	case e.Message == "":
		// Classification only: the originator's message stands alone,
		// so wrapping a routine's own error does not mangle it.
		return e.Originator.Error()
	default:
		return e.Message + ": " + e.Originator.Error()
	}
}

func (e *Error) Unwrap() error { return e.Originator }

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, message string, originator error) *Error {
	return &Error{Kind: kind, Message: message, Originator: originator}
}

// Wrap classifies err under kind. An error that already carries a
// classification keeps it, so the kind assigned closest to the fault's
// origin wins even when the error crosses several layers.
func Wrap(kind Kind, message string, err error) error {
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: kind, Message: message, Originator: err}
}

// KindOf returns err's classification, or the empty Kind for nil and
// unclassified errors.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}
