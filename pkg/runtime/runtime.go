// Package runtime is the facade tying together a Broker, a Stream (and
// the Journal underneath it), a Registry, and the invocation handler
// that lets routines await child invocations. A process normally owns
// exactly one Runtime.
package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/queueio/pkg/broker"
	"github.com/cuemby/queueio/pkg/consumer"
	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/future"
	"github.com/cuemby/queueio/pkg/invhandler"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/journal"
	"github.com/cuemby/queueio/pkg/log"
	"github.com/cuemby/queueio/pkg/metrics"
	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/registry"
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/stream"
	"github.com/cuemby/queueio/pkg/worker"
)

// Config wires the pieces a Runtime owns. Any zero field gets a
// sensible in-memory default, so New() alone is a usable single-process
// runtime for tests and examples.
type Config struct {
	Broker   broker.Broker
	Journal  journal.Journal
	Registry *registry.Registry
}

// Runtime is the single entry point a process uses to submit
// invocations, run worker pools against queues, and manage queue
// lifecycle.
type Runtime struct {
	broker   broker.Broker
	stream   *stream.Stream
	handler  *invhandler.Handler
	registry *registry.Registry
	logger   zerolog.Logger

	mu          sync.Mutex
	workers     []*worker.Worker
	consumers   []*consumer.Consumer
	shutdownCh  chan struct{}
	shutdownOne sync.Once
}

// New builds a Runtime from cfg, defaulting to an in-memory Broker and
// Journal and the package-level registry.Default.
func New(cfg Config) *Runtime {
	j := cfg.Journal
	if j == nil {
		j = journal.NewMemoryJournal()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default
	}
	b := cfg.Broker
	if b == nil {
		b = broker.NewMemory()
	}

	rt := &Runtime{
		broker:     b,
		stream:     stream.New(j),
		registry:   reg,
		logger:     log.WithComponent("runtime"),
		shutdownCh: make(chan struct{}),
	}
	rt.handler = invhandler.New(rt.stream, rt)
	return rt
}

// Enqueue serializes inv and places it on its registered routine's
// queue, publishing the Submitted event first. Implements
// invhandler.Submitter.
func (rt *Runtime) Enqueue(inv *invocation.Invocation) error {
	routine, ok := rt.registry.Lookup(inv.Routine)
	if !ok {
		return result.Errorf(result.KindConfiguration, fmt.Sprintf("runtime: no routine registered for %q", inv.Routine), nil)
	}
	if err := rt.stream.Publish(event.NewSubmitted(inv.ID, inv.Routine, inv.Args, inv.Kwargs, inv.Priority)); err != nil {
		return err
	}
	body, err := inv.Serialize()
	if err != nil {
		return err
	}
	return rt.broker.Enqueue(body, routine.Queue, inv.Priority)
}

// Submit builds a new invocation of routineName bound to ctx's ambient
// priority and queuevar scope, enqueues it, and returns a Future
// resolved with its eventual result.
func (rt *Runtime) Submit(ctx context.Context, routineName string, args []any, kwargs map[string]any, opts ...invocation.Option) (*future.Future[any], error) {
	inv := invocation.New(ctx, routineName, args, kwargs, opts...)
	return rt.handler.Submit(ctx, inv)
}

// Create, Delete, and Purge manage queue lifecycle on the underlying
// Broker, backing the `sync` and `queue purge` CLI commands.
func (rt *Runtime) Create(queue string, opts ...broker.CreateOption) error { return rt.broker.Create(queue, opts...) }
func (rt *Runtime) Delete(queue string) error                             { return rt.broker.Delete(queue) }
func (rt *Runtime) Purge(queue string) error                              { return rt.broker.Purge(queue) }

// Subscribe and Unsubscribe expose the event stream for `monitor`.
func (rt *Runtime) Subscribe(types ...string) *stream.FanoutQueue { return rt.stream.Subscribe(types...) }
func (rt *Runtime) Unsubscribe(q *stream.FanoutQueue)             { rt.stream.Unsubscribe(q) }

// Stream returns the underlying Stream, e.g. for wiring a
// metrics.Collector.
func (rt *Runtime) Stream() *stream.Stream { return rt.stream }

// Registry returns the Registry this Runtime resolves routines
// against, for the CLI's `routine list`.
func (rt *Runtime) Registry() *registry.Registry { return rt.registry }

// InvocationHandler returns the ambient invocation.Handler a worker
// installs into a routine's execution context so `yield invocation`
// resolves.
func (rt *Runtime) InvocationHandler() invocation.Handler { return rt.handler.AsInvocationHandler() }

// Run spawns a worker pool over spec and blocks until ctx is cancelled
// or Shutdown is called, then drains the pool. This is the body of the
// CLI's `run QUEUE[,QUEUE...]=CONCURRENCY` command.
func (rt *Runtime) Run(ctx context.Context, spec receiver.QueueSpec) error {
	r, err := rt.broker.Receive(spec)
	if err != nil {
		return err
	}
	rt.logger.Info().Strs("queues", spec.Queues).Int("concurrency", spec.Concurrency).Msg("Worker pool starting")
	cons := consumer.New(rt.stream, r)
	w := worker.New(rt.registry, cons, rt.stream, spec.Concurrency)
	w.SetHandler(rt.InvocationHandler())
	w.Run(ctx)

	rt.mu.Lock()
	rt.workers = append(rt.workers, w)
	rt.consumers = append(rt.consumers, cons)
	rt.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-rt.shutdownCh:
	case <-w.Exited():
		// The receiver died out from under the pool (broker transport
		// loss); stop the remaining goroutines.
		rt.logger.Warn().Msg("Worker receiver exited unexpectedly, stopping pool")
		metrics.MarkBroker(false, "receiver exited unexpectedly")
	}

	w.Stop()
	cons.Shutdown()
	return nil
}

// Shutdown stops every worker pool started via Run, closes the
// invocation handler, and shuts down the Broker and Stream. Idempotent.
func (rt *Runtime) Shutdown() {
	rt.shutdownOne.Do(func() { close(rt.shutdownCh) })
	rt.handler.Close()
	rt.broker.Shutdown()
	rt.stream.Shutdown()
	rt.logger.Info().Msg("Runtime shut down")
}
