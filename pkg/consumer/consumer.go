// Package consumer turns a raw receiver.Receiver into a stream of
// decoded Invocations plus the matching lifecycle-event side effects:
// every state transition a worker drives an invocation through (start,
// suspend, continue/throw, resume, complete) is published on the
// Stream and reflected back onto the underlying receiver.Message so
// the broker's capacity and acknowledgement invariants stay correct.
package consumer

import (
	"context"
	"sync"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/queuevar"
	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/stream"
)

// Consumer pairs a Receiver with the Stream its owner publishes
// lifecycle events to, tracking which receiver.Message backs each
// in-flight invocation id so Suspend/Resolve/Succeed etc. can drive the
// receiver's Pause/Unpause/Finish without the caller ever seeing a
// *receiver.Message.
type Consumer struct {
	stream   *stream.Stream
	receiver receiver.Receiver

	mu       sync.Mutex
	inFlight map[string]*receiver.Message
}

// New builds a Consumer reading from r and publishing to s.
func New(s *stream.Stream, r receiver.Receiver) *Consumer {
	return &Consumer{stream: s, receiver: r, inFlight: make(map[string]*receiver.Message)}
}

// Invocations decodes every message the underlying Receiver yields into
// an *invocation.Invocation, tracking the originating message for the
// lifetime of the invocation. Malformed bodies are finished immediately
// (there is no routine to retry them into) and skipped.
func (c *Consumer) Invocations(ctx context.Context) <-chan *invocation.Invocation {
	out := make(chan *invocation.Invocation)
	go func() {
		defer close(out)
		for msg := range c.receiver.Iterate(ctx) {
			inv, err := invocation.Deserialize(msg.Body())
			if err != nil {
				c.receiver.Finish(msg)
				continue
			}
			c.mu.Lock()
			c.inFlight[inv.ID] = msg
			c.mu.Unlock()

			select {
			case out <- inv:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (c *Consumer) message(id string) (*receiver.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.inFlight[id]
	return m, ok
}

func (c *Consumer) forget(id string) {
	c.mu.Lock()
	delete(c.inFlight, id)
	c.mu.Unlock()
}

// Start publishes the Started event marking the beginning of execution.
func (c *Consumer) Start(inv *invocation.Invocation) error {
	return c.stream.Publish(event.NewStarted(inv.ID))
}

// Suspend publishes Suspended (journal-visible) and LocalSuspended
// (in-process only, carrying the live generator handle) and releases
// the invocation's capacity slot via the receiver without
// acknowledging the underlying message.
func (c *Consumer) Suspend(inv *invocation.Invocation, susp any, generator any, ctx *queuevar.Context) error {
	if err := c.stream.Publish(event.NewSuspended(inv.ID)); err != nil {
		return err
	}
	c.stream.PublishLocal(event.NewLocalSuspended(inv.ID, susp, inv, generator, ctx))
	if msg, ok := c.message(inv.ID); ok {
		c.receiver.Pause(msg)
	}
	return nil
}

// Resume publishes Resumed, marking the start of re-execution. The
// capacity slot was already reclaimed by the Continue or Throw that
// scheduled this resumption.
func (c *Consumer) Resume(inv *invocation.Invocation) error {
	return c.stream.Publish(event.NewResumed(inv.ID))
}

// Continue publishes Continued and LocalContinued, the outcome of a
// suspended invocation's awaited child resolving to a value, and
// reclaims the capacity slot the matching Suspend released.
func (c *Consumer) Continue(inv *invocation.Invocation, generator any, value any) error {
	if err := c.stream.Publish(event.NewContinued(inv.ID, value)); err != nil {
		return err
	}
	c.stream.PublishLocal(event.NewLocalContinued(inv.ID, generator, value))
	if msg, ok := c.message(inv.ID); ok {
		c.receiver.Unpause(msg)
	}
	return nil
}

// Throw publishes Threw and LocalThrew, the outcome of a suspended
// invocation's awaited child erroring, and reclaims the capacity slot
// the matching Suspend released.
func (c *Consumer) Throw(inv *invocation.Invocation, generator any, cause error) error {
	if err := c.stream.Publish(event.NewThrew(inv.ID, cause)); err != nil {
		return err
	}
	c.stream.PublishLocal(event.NewLocalThrew(inv.ID, generator, cause))
	if msg, ok := c.message(inv.ID); ok {
		c.receiver.Unpause(msg)
	}
	return nil
}

// Succeed publishes Completed with an Ok result and finishes the
// underlying message, acknowledging it to the broker.
func (c *Consumer) Succeed(inv *invocation.Invocation, value any) error {
	return c.complete(inv, result.Ok(value))
}

// Error publishes Completed with an Err result and finishes the
// underlying message, acknowledging it to the broker.
func (c *Consumer) Error(inv *invocation.Invocation, cause error) error {
	return c.complete(inv, result.Err[any](cause))
}

func (c *Consumer) complete(inv *invocation.Invocation, res result.Result[any]) error {
	err := c.stream.Publish(event.NewCompleted(inv.ID, res))
	if msg, ok := c.message(inv.ID); ok {
		c.receiver.Finish(msg)
	}
	c.forget(inv.ID)
	return err
}

// Shutdown stops the underlying receiver; in-flight invocations are
// abandoned and will be redelivered per the broker's at-least-once
// guarantee.
func (c *Consumer) Shutdown() {
	c.receiver.Shutdown()
}
