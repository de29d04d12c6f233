// Package invhandler adapts a Stream's Completed events into the
// invocation.Handler a worker installs into a routine's execution
// context, letting `yield invocation` (awaiting a child invocation's
// result the same way a routine awaits any other Suspension) resolve
// once the child's Completed event is observed — no matter which
// worker in the fleet ran the child.
package invhandler

import (
	"context"
	"sync"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/future"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/stream"
)

// Submitter enqueues a freshly built invocation onto its target queue.
// Implemented by the runtime facade (package runtime), kept here as an
// interface so invhandler never needs to import it back.
type Submitter interface {
	Enqueue(inv *invocation.Invocation) error
}

// Handler tracks every invocation awaited via yield and resolves its
// Future the moment a matching Completed event arrives on the Stream.
type Handler struct {
	submitter Submitter
	stream    *stream.Stream
	queue     *stream.FanoutQueue

	mu      sync.Mutex
	waiting map[string]*future.Future[any]
	closed  bool
	done    chan struct{}
}

// New subscribes to s's Completed events and starts routing them to
// whichever Submit call is waiting on that invocation id.
func New(s *stream.Stream, submitter Submitter) *Handler {
	h := &Handler{
		submitter: submitter,
		stream:    s,
		queue:     s.Subscribe((&event.Completed{}).Type()),
		waiting:   make(map[string]*future.Future[any]),
		done:      make(chan struct{}),
	}
	go h.pump()
	return h
}

func (h *Handler) pump() {
	defer close(h.done)
	for e := range h.queue.C() {
		completed, ok := e.(*event.Completed)
		if !ok {
			continue
		}
		h.mu.Lock()
		f, ok := h.waiting[completed.InvocationID()]
		if ok {
			delete(h.waiting, completed.InvocationID())
		}
		h.mu.Unlock()
		if !ok {
			continue
		}
		if value, err := completed.Result.Unwrap(); err != nil {
			f.Reject(err)
		} else {
			f.Resolve(value)
		}
	}
}

// Submit enqueues inv and returns a Future resolved once inv's
// Completed event is observed. Implements invocation.Handler.
func (h *Handler) Submit(ctx context.Context, inv *invocation.Invocation) (*future.Future[any], error) {
	f := future.New[any]()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, context.Canceled
	}
	h.waiting[inv.ID] = f
	h.mu.Unlock()

	if err := h.submitter.Enqueue(inv); err != nil {
		h.mu.Lock()
		delete(h.waiting, inv.ID)
		h.mu.Unlock()
		return nil, err
	}
	return f, nil
}

// AsInvocationHandler returns h.Submit as an invocation.Handler, ready
// to be installed into a worker's execution context via
// invocation.WithHandler.
func (h *Handler) AsInvocationHandler() invocation.Handler {
	return h.Submit
}

// Close unsubscribes from the Stream and rejects every invocation still
// awaited, used during Shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	waiting := h.waiting
	h.waiting = nil
	h.mu.Unlock()

	h.stream.Unsubscribe(h.queue)
	<-h.done
	for _, f := range waiting {
		f.Reject(context.Canceled)
	}
}
