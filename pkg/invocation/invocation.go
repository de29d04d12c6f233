// Package invocation holds the immutable record submitted to a queue
// and executed by a worker: a routine name, its positional and keyword
// arguments, a priority, and a captured queuevar snapshot. Identity is
// by id, not structural equality. An Invocation also implements
// suspension.Suspension so a routine may `yield` one to await a child
// invocation the same way it awaits a Pause or Gather.
package invocation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/cuemby/queueio/pkg/future"
	"github.com/cuemby/queueio/pkg/queuevar"
)

// DefaultPriority is used when no priority is given explicitly and none
// is inherited from an enclosing invocation's scope.
const DefaultPriority = 4

// Priorities is the fixed number of priority sub-queues
// (0..Priorities-1) every named broker queue exposes.
const Priorities = 10

// NewID returns an opaque, globally unique invocation id.
func NewID() string {
	return uuid.NewString()
}

// Invocation is an immutable request to run a named routine.
type Invocation struct {
	ID       string
	Routine  string
	Args     []any
	Kwargs   map[string]any
	Priority int
	Context  *queuevar.Context
}

// Option customizes a New invocation.
type Option func(*Invocation)

// Priority overrides the invocation's priority instead of inheriting
// the ambient scope's.
func Priority(priority int) Option {
	return func(inv *Invocation) { inv.Priority = priority }
}

// WithID overrides the generated id, used when rebuilding an invocation
// from a deserialized wire payload.
func WithID(id string) Option {
	return func(inv *Invocation) { inv.ID = id }
}

// New builds an invocation whose priority is inherited from ctx's
// ambient scope (see PriorityFromContext) and whose context snapshot is
// captured from every queuevar.Var currently set in ctx, unless
// overridden by opts.
func New(ctx context.Context, routine string, args []any, kwargs map[string]any, opts ...Option) *Invocation {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	inv := &Invocation{
		ID:       NewID(),
		Routine:  routine,
		Args:     args,
		Kwargs:   kwargs,
		Priority: PriorityFromContext(ctx),
		Context:  queuevar.Capture(ctx),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Submit implements suspension.Suspension, letting a routine `yield` an
// Invocation directly to await a child's completion. It delegates to
// whichever Handler is installed in ctx by the running worker.
func (inv *Invocation) Submit(ctx context.Context) (*future.Future[any], error) {
	handler, ok := HandlerFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("invocation: no handler installed in context")
	}
	return handler(ctx, inv)
}

// wireFormat is the self-describing byte blob an invocation travels
// through a broker as.
type wireFormat struct {
	ID       string         `json:"id"`
	Routine  string         `json:"routine"`
	Args     []any          `json:"args"`
	Kwargs   map[string]any `json:"kwargs"`
	Priority int            `json:"priority"`
	Context  map[string]any `json:"context"`
}

// Serialize encodes the invocation into its wire format.
func (inv *Invocation) Serialize() ([]byte, error) {
	return json.Marshal(wireFormat{
		ID:       inv.ID,
		Routine:  inv.Routine,
		Args:     inv.Args,
		Kwargs:   inv.Kwargs,
		Priority: inv.Priority,
		Context:  inv.Context.Serialize(),
	})
}

// Deserialize decodes a message body produced by Serialize.
func Deserialize(body []byte) (*Invocation, error) {
	var w wireFormat
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("invocation: deserialize: %w", err)
	}
	return &Invocation{
		ID:       w.ID,
		Routine:  w.Routine,
		Args:     w.Args,
		Kwargs:   w.Kwargs,
		Priority: w.Priority,
		Context:  queuevar.Deserialize(w.Context),
	}, nil
}

type priorityKey struct{}

// WithPriority installs level as the ambient priority scope,
// inherited by any child Invocation created with New from a descendant
// context.
func WithPriority(ctx context.Context, level int) context.Context {
	return context.WithValue(ctx, priorityKey{}, level)
}

// PriorityFromContext reads the ambient priority scope, falling back to
// DefaultPriority when none has been set.
func PriorityFromContext(ctx context.Context) int {
	if ctx == nil {
		return DefaultPriority
	}
	if level, ok := ctx.Value(priorityKey{}).(int); ok {
		return level
	}
	return DefaultPriority
}

// Handler submits an invocation on behalf of Submit, returning a future
// that resolves when the invocation's Completed event is observed.
// Installed into a worker's execution context by the invocation-handler
// component (package invhandler).
type Handler func(ctx context.Context, inv *Invocation) (*future.Future[any], error)

type handlerKey struct{}

// WithHandler installs h as the ambient Handler for ctx and its
// descendants.
func WithHandler(ctx context.Context, h Handler) context.Context {
	return context.WithValue(ctx, handlerKey{}, h)
}

// HandlerFromContext retrieves the ambient Handler, if any.
func HandlerFromContext(ctx context.Context) (Handler, bool) {
	h, ok := ctx.Value(handlerKey{}).(Handler)
	return h, ok
}
