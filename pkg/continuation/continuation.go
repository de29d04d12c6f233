// Package continuation is the record that lets a runner resume a
// suspended invocation's generator handle with an injected value or
// error. Exactly one Continuation is ever in flight per suspended
// invocation, and it is owned exclusively by whichever runner
// goroutine dequeues it.
package continuation

import (
	"github.com/cuemby/queueio/pkg/coroutine"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/queuevar"
	"github.com/cuemby/queueio/pkg/result"
)

// Continuation carries the next value or error to inject into a
// suspended invocation's coroutine.
type Continuation struct {
	ID         string
	Invocation *invocation.Invocation
	Generator  *coroutine.Coroutine
	Result     result.Result[any]
	Context    *queuevar.Context
}

// New builds a Continuation ready to be placed on a worker's task queue.
func New(inv *invocation.Invocation, gen *coroutine.Coroutine, res result.Result[any], ctx *queuevar.Context) *Continuation {
	return &Continuation{
		ID:         invocation.NewID(),
		Invocation: inv,
		Generator:  gen,
		Result:     res,
		Context:    ctx,
	}
}
