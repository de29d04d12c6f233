package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/queueio/pkg/broker"
	"github.com/cuemby/queueio/pkg/consumer"
	"github.com/cuemby/queueio/pkg/coroutine"
	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/invocation"
	"github.com/cuemby/queueio/pkg/journal"
	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/registry"
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/stream"
)

// rig wires a worker pool directly over a Memory broker, with no
// runtime facade, so tests control exactly what lands on the queue.
type rig struct {
	broker *broker.Memory
	stream *stream.Stream
	worker *Worker
	cancel context.CancelFunc
}

func newRig(t *testing.T, reg *registry.Registry, concurrency int) *rig {
	t.Helper()
	b := broker.NewMemory()
	require.NoError(t, b.Create("q"))

	s := stream.New(journal.NewMemoryJournal())
	r, err := b.Receive(receiver.QueueSpec{Queues: []string{"q"}, Concurrency: concurrency})
	require.NoError(t, err)

	cons := consumer.New(s, r)
	w := New(reg, cons, s, concurrency)

	ctx, cancel := context.WithCancel(context.Background())
	w.Run(ctx)

	t.Cleanup(func() {
		cancel()
		w.Stop()
		cons.Shutdown()
		b.Shutdown()
		s.Shutdown()
	})
	return &rig{broker: b, stream: s, worker: w, cancel: cancel}
}

func (rg *rig) enqueue(t *testing.T, inv *invocation.Invocation) {
	t.Helper()
	body, err := inv.Serialize()
	require.NoError(t, err)
	require.NoError(t, rg.broker.Enqueue(body, "q", inv.Priority))
}

func awaitCompleted(t *testing.T, q *stream.FanoutQueue, id string) *event.Completed {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-q.C():
			require.True(t, ok, "completed queue closed unexpectedly")
			if c, isCompleted := e.(*event.Completed); isCompleted && c.InvocationID() == id {
				return c
			}
		case <-deadline:
			t.Fatalf("no Completed event for %s", id)
			return nil
		}
	}
}

func TestWorkerRunsRegisteredRoutine(t *testing.T) {
	reg := registry.New()
	reg.Register("greet", "q", func(ctx context.Context, yield coroutine.Yield, args []any, kwargs map[string]any) (any, error) {
		return "hi " + args[0].(string), nil
	})

	rg := newRig(t, reg, 1)
	completed := rg.stream.Subscribe((&event.Completed{}).Type())
	defer rg.stream.Unsubscribe(completed)

	inv := invocation.New(context.Background(), "greet", []any{"there"}, nil)
	rg.enqueue(t, inv)

	c := awaitCompleted(t, completed, inv.ID)
	value, err := c.Result.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "hi there", value)
}

// TestWorkerUnknownRoutine: a message naming an unregistered routine is
// completed with an error rather than crashing or wedging the runner.
func TestWorkerUnknownRoutine(t *testing.T) {
	rg := newRig(t, registry.New(), 1)
	completed := rg.stream.Subscribe((&event.Completed{}).Type())
	defer rg.stream.Unsubscribe(completed)

	inv := invocation.New(context.Background(), "ghost", nil, nil)
	rg.enqueue(t, inv)

	c := awaitCompleted(t, completed, inv.ID)
	assert.False(t, c.Result.IsOk())
	_, err := c.Result.Unwrap()
	assert.Contains(t, err.Error(), "ghost")
	assert.Equal(t, result.KindConfiguration, result.KindOf(err))
}

// TestWorkerSurvivesFailingRoutine: a routine error is reported as an
// event and the runner keeps serving subsequent invocations.
func TestWorkerSurvivesFailingRoutine(t *testing.T) {
	reg := registry.New()
	reg.Register("bad", "q", func(ctx context.Context, yield coroutine.Yield, args []any, kwargs map[string]any) (any, error) {
		return nil, assert.AnError
	})
	reg.Register("good", "q", func(ctx context.Context, yield coroutine.Yield, args []any, kwargs map[string]any) (any, error) {
		return "still here", nil
	})

	rg := newRig(t, reg, 1)
	completed := rg.stream.Subscribe((&event.Completed{}).Type())
	defer rg.stream.Unsubscribe(completed)

	bad := invocation.New(context.Background(), "bad", nil, nil)
	good := invocation.New(context.Background(), "good", nil, nil)
	rg.enqueue(t, bad)
	rg.enqueue(t, good)

	c := awaitCompleted(t, completed, bad.ID)
	assert.False(t, c.Result.IsOk())

	c = awaitCompleted(t, completed, good.ID)
	value, err := c.Result.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "still here", value)
}

// TestWorkerPriorityScope: the runner installs the invocation's
// priority as the ambient scope before the routine runs.
func TestWorkerPriorityScope(t *testing.T) {
	reg := registry.New()
	reg.Register("introspect", "q", func(ctx context.Context, yield coroutine.Yield, args []any, kwargs map[string]any) (any, error) {
		return invocation.PriorityFromContext(ctx), nil
	})

	rg := newRig(t, reg, 1)
	completed := rg.stream.Subscribe((&event.Completed{}).Type())
	defer rg.stream.Unsubscribe(completed)

	inv := invocation.New(context.Background(), "introspect", nil, nil, invocation.Priority(8))
	rg.enqueue(t, inv)

	c := awaitCompleted(t, completed, inv.ID)
	value, err := c.Result.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 8, value)
}
