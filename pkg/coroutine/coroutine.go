// Package coroutine drives a step-wise routine — one that yields
// Suspensions instead of returning a plain value — without a host
// generator primitive. Go has no generator send/throw protocol, so a
// Coroutine runs the routine body on its own goroutine and exchanges
// each step over a pair of unbuffered channels: the routine blocks in
// Yield until the runner resumes it with a result.Result carrying the
// injected value or error, which Yield hands back as an ordinary
// two-value return.
package coroutine

import (
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/suspension"
)

// Yield suspends the calling routine until the runner resumes it with a
// value or an error, mirroring a generator's `send`/`throw`.
type Yield func(s suspension.Suspension) (any, error)

// Func is the body of a step-wise routine.
type Func func(yield Yield) (any, error)

// Coroutine runs a Func on a dedicated goroutine and lets a single
// driver (the worker runner that owns this invocation) step it forward
// one suspension at a time via Start and Resume.
type Coroutine struct {
	yieldCh  chan suspension.Suspension
	resumeCh chan result.Result[any]
	doneCh   chan struct{}
	value    any
	err      error
}

// New starts fn running in the background. fn blocks immediately at
// its first yield call, so New never blocks the caller for long, but
// it is still one goroutine per in-flight coroutine — exactly one
// generator handle per invocation.
func New(fn Func) *Coroutine {
	c := &Coroutine{
		yieldCh:  make(chan suspension.Suspension),
		resumeCh: make(chan result.Result[any]),
		doneCh:   make(chan struct{}),
	}

	yield := func(s suspension.Suspension) (any, error) {
		c.yieldCh <- s
		res := <-c.resumeCh
		return res.Unwrap()
	}

	go func() {
		defer close(c.doneCh)
		c.value, c.err = fn(yield)
	}()

	return c
}

// Start blocks until fn either yields its first Suspension (stopped is
// false) or returns without ever suspending (stopped is true, carrying
// fn's return value or error).
func (c *Coroutine) Start() (s suspension.Suspension, value any, err error, stopped bool) {
	select {
	case s := <-c.yieldCh:
		return s, nil, nil, false
	case <-c.doneCh:
		return nil, c.value, c.err, true
	}
}

// Resume injects res as the outcome of the most recently yielded
// Suspension and blocks until fn's next Suspension or its completion.
func (c *Coroutine) Resume(res result.Result[any]) (s suspension.Suspension, value any, err error, stopped bool) {
	c.resumeCh <- res
	select {
	case s := <-c.yieldCh:
		return s, nil, nil, false
	case <-c.doneCh:
		return nil, c.value, c.err, true
	}
}
