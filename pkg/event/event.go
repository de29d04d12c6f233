// Package event defines the lifecycle events published as an
// invocation moves through submit, execution, suspension, and
// completion. Every concrete event carries the invocation id, and for
// a given id events are published in the order:
//
//	Submitted -> Started -> (Suspended -> Continued|Threw -> Resumed)* -> Completed
package event

import (
	"time"

	"github.com/cuemby/queueio/pkg/result"
)

// Event is the common interface satisfied by every concrete lifecycle
// event. Type returns a stable name used for Stream subscription
// filtering (see package stream) and for journal wire framing.
type Event interface {
	InvocationID() string
	Type() string
	occurredAt() time.Time
}

type base struct {
	ID string
	At time.Time
}

func newBase(id string) base {
	return base{ID: id, At: time.Now()}
}

func (b base) InvocationID() string  { return b.ID }
func (b base) occurredAt() time.Time { return b.At }

// Submitted is published when an invocation is first enqueued.
type Submitted struct {
	base
	Routine  string
	Args     []any
	Kwargs   map[string]any
	Priority int
}

func NewSubmitted(id, routine string, args []any, kwargs map[string]any, priority int) *Submitted {
	return &Submitted{base: newBase(id), Routine: routine, Args: args, Kwargs: kwargs, Priority: priority}
}

func (*Submitted) Type() string { return "Submitted" }

// Started is published when a runner thread begins executing an
// invocation's routine.
type Started struct{ base }

func NewStarted(id string) *Started { return &Started{base: newBase(id)} }
func (*Started) Type() string       { return "Started" }

// Suspended is published (on the journal, visible cluster-wide) when a
// step-wise routine yields a Suspension.
type Suspended struct{ base }

func NewSuspended(id string) *Suspended { return &Suspended{base: newBase(id)} }
func (*Suspended) Type() string         { return "Suspended" }

// LocalSuspended carries the generator and suspension references that
// cannot cross a process boundary; it is only ever delivered to
// in-process subscribers via Stream.PublishLocal.
type LocalSuspended struct {
	base
	Suspension any // suspension.Suspension; typed any to avoid an import cycle
	Invocation any // *invocation.Invocation
	Generator  any // *coroutine.Coroutine
	Context    any // *queuevar.Context
}

func NewLocalSuspended(id string, suspension, invocation, generator, ctx any) *LocalSuspended {
	return &LocalSuspended{base: newBase(id), Suspension: suspension, Invocation: invocation, Generator: generator, Context: ctx}
}
func (*LocalSuspended) Type() string { return "LocalSuspended" }

// Continued is published when a suspended invocation's child resolved
// to a value.
type Continued struct {
	base
	Value any
}

func NewContinued(id string, value any) *Continued {
	return &Continued{base: newBase(id), Value: value}
}
func (*Continued) Type() string { return "Continued" }

// LocalContinued is the in-process counterpart of Continued, carrying
// the generator reference the continuer needs to resume.
type LocalContinued struct {
	base
	Generator any
	Value     any
}

func NewLocalContinued(id string, generator, value any) *LocalContinued {
	return &LocalContinued{base: newBase(id), Generator: generator, Value: value}
}
func (*LocalContinued) Type() string { return "LocalContinued" }

// Threw is published when a suspended invocation's child errored.
type Threw struct {
	base
	Err error
}

func NewThrew(id string, err error) *Threw { return &Threw{base: newBase(id), Err: err} }
func (*Threw) Type() string                { return "Threw" }

// LocalThrew is the in-process counterpart of Threw.
type LocalThrew struct {
	base
	Generator any
	Err       error
}

func NewLocalThrew(id string, generator any, err error) *LocalThrew {
	return &LocalThrew{base: newBase(id), Generator: generator, Err: err}
}
func (*LocalThrew) Type() string { return "LocalThrew" }

// Resumed is published when a runner thread re-injects a value or
// exception into a previously suspended routine.
type Resumed struct{ base }

func NewResumed(id string) *Resumed { return &Resumed{base: newBase(id)} }
func (*Resumed) Type() string       { return "Resumed" }

// Completed is published exactly once per invocation, carrying its
// final Ok or Err result.
type Completed struct {
	base
	Result result.Result[any]
}

func NewCompleted(id string, res result.Result[any]) *Completed {
	return &Completed{base: newBase(id), Result: res}
}
func (*Completed) Type() string { return "Completed" }
