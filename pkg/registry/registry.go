// Package registry is the process-wide bijection between routine
// names and the step-wise functions that implement them: a routine
// registers itself once, typically from an init() function, and a
// worker looks it up by name off the wire when a message for it
// arrives.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/queueio/pkg/coroutine"
)

// Fn is a registered routine body. ctx carries the invocation's
// restored queuevar snapshot, inherited priority, and the installed
// invocation.Handler, so the routine can build child invocations (to
// yield as Suspensions) with correctly inherited ambient state. Fn
// receives the invocation's args and kwargs already deserialized off
// the wire, and a Yield it may call any number of times to await a
// Suspension before returning a final value or error.
type Fn func(ctx context.Context, yield coroutine.Yield, args []any, kwargs map[string]any) (any, error)

// Routine is a named, queue-bound Fn.
type Routine struct {
	Name  string
	Queue string
	Fn    Fn
}

// Registry is a name -> Routine bijection. The zero value is ready to
// use; Default is the process-wide instance routines register into.
type Registry struct {
	mu       sync.RWMutex
	routines map[string]*Routine
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{routines: make(map[string]*Routine)}
}

// Register adds routine under name for queue. It panics on a
// duplicate name: a silent overwrite would leave half of a running
// cluster calling the wrong function for a given name.
func (r *Registry) Register(name, queue string, fn Fn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routines[name]; exists {
		panic(fmt.Sprintf("registry: routine %q already registered", name))
	}
	if r.routines == nil {
		r.routines = make(map[string]*Routine)
	}
	r.routines[name] = &Routine{Name: name, Queue: queue, Fn: fn}
}

// Lookup returns the routine registered under name, if any.
func (r *Registry) Lookup(name string) (*Routine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routine, ok := r.routines[name]
	return routine, ok
}

// All returns every registered routine, in no particular order.
func (r *Registry) All() []*Routine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Routine, 0, len(r.routines))
	for _, routine := range r.routines {
		out = append(out, routine)
	}
	return out
}

// Default is the process-wide registry routines register into from
// init() functions in their own packages.
var Default = New()

// Register adds fn to the Default registry.
func Register(name, queue string, fn Fn) { Default.Register(name, queue, fn) }

// Lookup looks fn up in the Default registry.
func Lookup(name string) (*Routine, bool) { return Default.Lookup(name) }

// All returns every routine registered in the Default registry.
func All() []*Routine { return Default.All() }
