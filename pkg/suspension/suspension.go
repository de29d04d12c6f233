// Package suspension defines the abstract tagged variant a routine
// yields to pause itself: wait for another invocation, wait a
// wall-clock interval, or wait for a set of suspensions to all
// resolve. Each variant's Submit returns a future that fires once the
// underlying wait is satisfied.
package suspension

import (
	"context"
	"time"

	"github.com/cuemby/queueio/pkg/future"
)

// Suspension is something a step-wise routine can yield and have the
// continuer wait on in its place. *invocation.Invocation itself
// implements this interface (an invocation can be awaited like any
// other suspension); this package only declares the interface to avoid
// a dependency cycle between suspension and invocation.
type Suspension interface {
	// Submit begins waiting and returns a future that resolves when
	// this suspension is satisfied. ctx carries the priority and
	// queuevar context the continuer is running under; cancelling ctx
	// (worker shutdown) releases any timer or goroutine Submit started.
	Submit(ctx context.Context) (*future.Future[any], error)
}

// Pause waits a wall-clock interval before resolving with a nil value.
type Pause struct {
	Duration time.Duration
}

// Submit implements Suspension.
func (p Pause) Submit(ctx context.Context) (*future.Future[any], error) {
	f := future.New[any]()
	timer := time.AfterFunc(p.Duration, func() {
		f.Resolve(nil)
	})
	go func() {
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-f.Done():
		}
	}()
	return f, nil
}

// Gather waits for every component Suspension to resolve, aggregating
// their values in order. If any component errs, the Gather future errs
// with the first error encountered (in submission order).
type Gather []Suspension

// Submit implements Suspension. Every component is submitted
// immediately and concurrently; Submit itself never blocks.
func (g Gather) Submit(ctx context.Context) (*future.Future[any], error) {
	futures := make([]*future.Future[any], len(g))
	for i, s := range g {
		f, err := s.Submit(ctx)
		if err != nil {
			return nil, err
		}
		futures[i] = f
	}

	out := future.New[any]()
	go func() {
		values := make([]any, len(futures))
		var firstErr error
		for i, f := range futures {
			v, err := f.Wait(ctx)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			values[i] = v
		}
		if firstErr != nil {
			out.Reject(firstErr)
			return
		}
		out.Resolve(values)
	}()
	return out, nil
}
