// Package worker runs a fixed-size pool of goroutines that drive
// invocations through a registry.Registry's routines. Two kinds of
// work arrive at the pool: a freshly delivered invocation (start it)
// and a resumed continuation (inject a value or error into a suspended
// coroutine). Suspensions are awaited off the runner pool entirely:
// each Suspended invocation gets its own dedicated goroutine blocked
// on the suspension's future, so a slow suspension never starves the
// pool the way a single polling continuer thread would.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/queueio/pkg/consumer"
	"github.com/cuemby/queueio/pkg/continuation"
	"github.com/cuemby/queueio/pkg/coroutine"
	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/log"
	"github.com/cuemby/queueio/pkg/queuevar"
	"github.com/cuemby/queueio/pkg/registry"
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/stream"
	"github.com/cuemby/queueio/pkg/suspension"
)

type taskKind int

const (
	taskStart taskKind = iota
	taskResume
)

type task struct {
	kind taskKind
	inv  *invocation.Invocation
	cont *continuation.Continuation
}

// Worker is a fixed-size runner pool for one Consumer.
type Worker struct {
	registry    *registry.Registry
	consumer    *consumer.Consumer
	stream      *stream.Stream
	concurrency int
	logger      zerolog.Logger

	mu      sync.RWMutex
	handler invocation.Handler

	tasks  chan task
	stopCh chan struct{}
	wg     sync.WaitGroup

	exited   chan struct{}
	exitOnce sync.Once

	suspendedQueue *stream.FanoutQueue
}

// New builds a Worker pulling invocations from cons and running
// concurrency of them at a time, looking routines up in reg.
func New(reg *registry.Registry, cons *consumer.Consumer, s *stream.Stream, concurrency int) *Worker {
	return &Worker{
		registry:    reg,
		consumer:    cons,
		stream:      s,
		concurrency: concurrency,
		logger:      log.WithComponent("worker"),
		tasks:       make(chan task, concurrency),
		stopCh:      make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

// SetHandler installs the invocation.Handler routines use to submit
// and await child invocations (`yield invocation`). Must be called
// before Run if any registered routine yields an Invocation.
func (w *Worker) SetHandler(h invocation.Handler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

func (w *Worker) currentHandler() invocation.Handler {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.handler
}

// Run starts the receiver, continuer, and runner goroutines. It
// returns immediately; call Stop to wait for them to drain.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().Int("concurrency", w.concurrency).Msg("Worker starting")
	w.suspendedQueue = w.stream.Subscribe((&event.LocalSuspended{}).Type())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.receive(ctx)
	}()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.continuer(ctx)
	}()

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}
}

// Stop unsubscribes from the stream, stops accepting new tasks, and
// blocks until the receiver, continuer, and runner goroutines return.
// The task channel is deliberately never closed: suspension-await
// goroutines may still be selecting on a send into it, and they bail
// out via stopCh instead.
func (w *Worker) Stop() {
	w.stream.Unsubscribe(w.suspendedQueue)
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info().Msg("Worker stopped")
}

// Exited closes once the receive loop ends — on orderly shutdown, but
// also when the underlying receiver dies out from under the worker, so
// an owner can treat it as the unexpected-exit signal and stop the
// remaining goroutines.
func (w *Worker) Exited() <-chan struct{} {
	return w.exited
}

func (w *Worker) receive(ctx context.Context) {
	defer w.exitOnce.Do(func() { close(w.exited) })
	for inv := range w.consumer.Invocations(ctx) {
		select {
		case w.tasks <- task{kind: taskStart, inv: inv}:
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) continuer(ctx context.Context) {
	for e := range w.suspendedQueue.C() {
		ls, ok := e.(*event.LocalSuspended)
		if !ok {
			continue
		}
		go w.awaitSuspension(ctx, ls)
	}
}

// awaitSuspension blocks on susp's future on its own goroutine so a
// slow or long-sleeping suspension never occupies a pool slot.
func (w *Worker) awaitSuspension(ctx context.Context, ls *event.LocalSuspended) {
	inv, _ := ls.Invocation.(*invocation.Invocation)
	gen, _ := ls.Generator.(*coroutine.Coroutine)
	qctx, _ := ls.Context.(*queuevar.Context)
	susp, _ := ls.Suspension.(suspension.Suspension)
	if inv == nil || gen == nil || susp == nil {
		return
	}

	execCtx := qctx.Load(ctx)
	execCtx = invocation.WithPriority(execCtx, inv.Priority)
	if h := w.currentHandler(); h != nil {
		execCtx = invocation.WithHandler(execCtx, h)
	}

	var res result.Result[any]
	f, err := susp.Submit(execCtx)
	if err != nil {
		res = result.Err[any](result.Wrap(result.KindSuspension, "submitting suspension", err))
	} else {
		value, waitErr := f.Wait(ctx)
		if waitErr != nil {
			res = result.Err[any](result.Wrap(result.KindSuspension, "awaiting suspension", waitErr))
		} else {
			res = result.Ok(value)
		}
	}

	if res.IsOk() {
		w.consumer.Continue(inv, gen, res.Value())
	} else {
		w.consumer.Throw(inv, gen, res.Error())
	}

	cont := continuation.New(inv, gen, res, qctx)
	select {
	case w.tasks <- task{kind: taskResume, inv: inv, cont: cont}:
	case <-w.stopCh:
	case <-ctx.Done():
	}
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case t := <-w.tasks:
			w.execute(ctx, t)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) execute(ctx context.Context, t task) {
	switch t.kind {
	case taskStart:
		w.start(ctx, t.inv)
	case taskResume:
		w.resume(t.cont)
	}
}

func (w *Worker) start(ctx context.Context, inv *invocation.Invocation) {
	routine, ok := w.registry.Lookup(inv.Routine)
	if !ok {
		invLogger := log.WithInvocation(inv.ID, inv.Routine)
		invLogger.Warn().Msg("No routine registered")
		w.consumer.Error(inv, result.Errorf(result.KindConfiguration, fmt.Sprintf("worker: no routine registered for %q", inv.Routine), nil))
		return
	}
	if err := w.consumer.Start(inv); err != nil {
		w.consumer.Error(inv, result.Wrap(result.KindTransport, "publishing Started", err))
		return
	}

	execCtx := inv.Context.Load(ctx)
	execCtx = invocation.WithPriority(execCtx, inv.Priority)
	if h := w.currentHandler(); h != nil {
		execCtx = invocation.WithHandler(execCtx, h)
	}

	gen := coroutine.New(func(yield coroutine.Yield) (any, error) {
		return routine.Fn(execCtx, yield, inv.Args, inv.Kwargs)
	})

	s, value, err, stopped := gen.Start()
	w.advance(inv, gen, inv.Context, s, value, err, stopped)
}

func (w *Worker) resume(cont *continuation.Continuation) {
	if err := w.consumer.Resume(cont.Invocation); err != nil {
		w.consumer.Error(cont.Invocation, result.Wrap(result.KindTransport, "publishing Resumed", err))
		return
	}
	s, value, err, stopped := cont.Generator.Resume(cont.Result)
	w.advance(cont.Invocation, cont.Generator, cont.Context, s, value, err, stopped)
}

func (w *Worker) advance(inv *invocation.Invocation, gen *coroutine.Coroutine, qctx *queuevar.Context, s suspension.Suspension, value any, err error, stopped bool) {
	if stopped {
		if err != nil {
			advLogger := log.WithInvocation(inv.ID, inv.Routine)
			advLogger.Debug().Err(err).Msg("Routine returned error")
			w.consumer.Error(inv, result.Wrap(result.KindRoutine, "", err))
		} else {
			w.consumer.Succeed(inv, value)
		}
		return
	}
	w.consumer.Suspend(inv, s, gen, qctx)
}
