// Package queuevar implements named context-variable propagation across
// an invocation boundary: a value set by the submitting routine is
// captured, serialized with the invocation, and restored into the
// executing goroutine's context on the worker that eventually runs it.
//
// Go has no per-goroutine implicit state, so the captured snapshot is
// carried explicitly as an immutable *Context value threaded through
// context.Context and installed by the runner before a routine
// executes.
package queuevar

import "context"

type ctxKey struct{}

// Var is a named variable that may be read inside a routine and is
// automatically captured and restored across invocation boundaries.
type Var[T any] struct {
	name         string
	defaultValue T
}

// New declares a named queue variable with a default value used when
// no snapshot entry is present.
func New[T any](name string, defaultValue T) *Var[T] {
	return &Var[T]{name: name, defaultValue: defaultValue}
}

// Name returns the variable's registered name.
func (v *Var[T]) Name() string { return v.name }

// Get reads the variable's value out of ctx, falling back to the
// declared default if the context carries no Context snapshot or the
// snapshot has no entry for this variable.
func (v *Var[T]) Get(ctx context.Context) T {
	snap := FromContext(ctx)
	if snap == nil {
		return v.defaultValue
	}
	raw, ok := snap.data[v.name]
	if !ok {
		return v.defaultValue
	}
	value, ok := raw.(T)
	if !ok {
		return v.defaultValue
	}
	return value
}

// With returns a context carrying value for v, layered on top of
// whatever Context snapshot ctx already carries.
func With[T any](ctx context.Context, v *Var[T], value T) context.Context {
	snap := FromContext(ctx).clone()
	snap.data[v.name] = value
	return context.WithValue(ctx, ctxKey{}, snap)
}

// Context is an immutable named-variable snapshot, capturable at
// submit time and restorable on the worker that runs the invocation.
type Context struct {
	data map[string]any
}

// Capture snapshots every queuevar value currently set in ctx.
func Capture(ctx context.Context) *Context {
	return FromContext(ctx).clone()
}

// FromContext extracts the Context snapshot carried by ctx, or an
// empty one if none has been set.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return &Context{data: map[string]any{}}
	}
	if c, ok := ctx.Value(ctxKey{}).(*Context); ok {
		return c
	}
	return &Context{data: map[string]any{}}
}

// Load installs this snapshot's values into ctx so routine code can
// read them back out through Var.Get.
func (c *Context) Load(ctx context.Context) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, c.clone())
}

// Serialize returns the snapshot as a plain map suitable for
// transport as the invocation's `context` field.
func (c *Context) Serialize() map[string]any {
	if c == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Deserialize rebuilds a Context from a decoded `context` field.
func Deserialize(data map[string]any) *Context {
	if data == nil {
		data = map[string]any{}
	}
	return &Context{data: data}
}

func (c *Context) clone() *Context {
	if c == nil {
		return &Context{data: map[string]any{}}
	}
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return &Context{data: out}
}
