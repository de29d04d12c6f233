package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/journal"
	"github.com/cuemby/queueio/pkg/result"
)

func nextEvent(t *testing.T, q *FanoutQueue) event.Event {
	t.Helper()
	select {
	case e, ok := <-q.C():
		require.True(t, ok, "subscriber queue closed unexpectedly")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func assertNoEvent(t *testing.T, q *FanoutQueue) {
	t.Helper()
	select {
	case e := <-q.C():
		t.Fatalf("unexpected event delivered: %s(%s)", e.Type(), e.InvocationID())
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	s := New(journal.NewMemoryJournal())
	defer s.Shutdown()

	completed := s.Subscribe((&event.Completed{}).Type())

	require.NoError(t, s.Publish(event.NewStarted("inv-1")))
	require.NoError(t, s.Publish(event.NewCompleted("inv-1", result.Ok[any]("done"))))

	e := nextEvent(t, completed)
	c, ok := e.(*event.Completed)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "inv-1", c.InvocationID())
	value, err := c.Result.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, "done", value)

	assertNoEvent(t, completed)
}

func TestSubscribeEmptyFilterMatchesEverything(t *testing.T) {
	s := New(journal.NewMemoryJournal())
	defer s.Shutdown()

	all := s.Subscribe()

	require.NoError(t, s.Publish(event.NewStarted("inv-1")))
	s.PublishLocal(event.NewLocalContinued("inv-1", nil, 42))

	assert.Equal(t, "Started", nextEvent(t, all).Type())
	assert.Equal(t, "LocalContinued", nextEvent(t, all).Type())
}

// TestPublishCrossesJournal: two Streams over the same Journal see each
// other's serializable events, the way two workers in a fleet do.
func TestPublishCrossesJournal(t *testing.T) {
	j := journal.NewMemoryJournal()
	local := New(j)
	remote := New(j)
	defer local.Shutdown()
	defer remote.Shutdown()

	remoteSub := remote.Subscribe((&event.Completed{}).Type())

	require.NoError(t, local.Publish(event.NewCompleted("inv-9", result.Ok[any](3.5))))

	e := nextEvent(t, remoteSub)
	c, ok := e.(*event.Completed)
	require.True(t, ok, "got %T", e)
	assert.Equal(t, "inv-9", c.InvocationID())
	value, err := c.Result.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 3.5, value)
}

// TestPublishLocalStaysLocal: Local* events never cross the journal,
// and PublishLocal bypasses it even for serializable events.
func TestPublishLocalStaysLocal(t *testing.T) {
	j := journal.NewMemoryJournal()
	local := New(j)
	remote := New(j)
	defer local.Shutdown()
	defer remote.Shutdown()

	localSub := local.Subscribe()
	remoteSub := remote.Subscribe()

	require.NoError(t, local.Publish(event.NewLocalSuspended("inv-2", nil, nil, nil, nil)))
	local.PublishLocal(event.NewStarted("inv-3"))

	assert.Equal(t, "LocalSuspended", nextEvent(t, localSub).Type())
	assert.Equal(t, "Started", nextEvent(t, localSub).Type())
	assertNoEvent(t, remoteSub)
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	s := New(journal.NewMemoryJournal())
	defer s.Shutdown()

	q := s.Subscribe()
	s.Unsubscribe(q)
	s.Unsubscribe(q) // second call is a no-op

	_, ok := <-q.C()
	assert.False(t, ok)
}

func TestShutdownClosesEverySubscriber(t *testing.T) {
	s := New(journal.NewMemoryJournal())
	a := s.Subscribe()
	b := s.Subscribe((&event.Started{}).Type())

	s.Shutdown()
	s.Shutdown()

	_, ok := <-a.C()
	assert.False(t, ok)
	_, ok = <-b.C()
	assert.False(t, ok)

	// Subscribing after shutdown yields an already-closed queue.
	late := s.Subscribe()
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   event.Event
	}{
		{"submitted", event.NewSubmitted("i1", "orders.ship", []any{"a", 2.0}, map[string]any{"k": "v"}, 7)},
		{"started", event.NewStarted("i2")},
		{"suspended", event.NewSuspended("i3")},
		{"continued", event.NewContinued("i4", "value")},
		{"resumed", event.NewResumed("i5")},
		{"completed ok", event.NewCompleted("i6", result.Ok[any]("fine"))},
		{"completed err", event.NewCompleted("i7", result.Err[any](errors.New("boom")))},
		{"threw", event.NewThrew("i8", errors.New("child failed"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := encode(tt.in, "origin-a")
			require.NoError(t, err)

			out, origin, err := decode(body)
			require.NoError(t, err)
			assert.Equal(t, "origin-a", origin)
			assert.Equal(t, tt.in.Type(), out.Type())
			assert.Equal(t, tt.in.InvocationID(), out.InvocationID())
		})
	}
}

func TestCodecCompletedErrSurvives(t *testing.T) {
	body, err := encode(event.NewCompleted("i1", result.Err[any](errors.New("kaput"))), "origin-a")
	require.NoError(t, err)

	out, _, err := decode(body)
	require.NoError(t, err)
	c := out.(*event.Completed)
	assert.False(t, c.Result.IsOk())
	_, resultErr := c.Result.Unwrap()
	assert.EqualError(t, resultErr, "kaput")
}

// TestCodecKindSurvivesWire: a classified failure keeps its kind when
// observed from another process.
func TestCodecKindSurvivesWire(t *testing.T) {
	cause := result.Errorf(result.KindRoutine, "routine failed", nil)
	body, err := encode(event.NewCompleted("i1", result.Err[any](cause)), "origin-a")
	require.NoError(t, err)

	out, _, err := decode(body)
	require.NoError(t, err)
	c := out.(*event.Completed)
	_, decodedErr := c.Result.Unwrap()
	assert.Equal(t, result.KindRoutine, result.KindOf(decodedErr))
	assert.EqualError(t, decodedErr, "routine failed")

	body, err = encode(event.NewThrew("i2", result.Errorf(result.KindQueue, "queue missing", nil)), "origin-a")
	require.NoError(t, err)
	out, _, err = decode(body)
	require.NoError(t, err)
	threw := out.(*event.Threw)
	assert.Equal(t, result.KindQueue, result.KindOf(threw.Err))
}

func TestEncodeRejectsLocalEvents(t *testing.T) {
	_, err := encode(event.NewLocalContinued("i1", nil, 1), "origin-a")
	assert.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := decode([]byte("not json"))
	assert.Error(t, err)

	_, _, err = decode([]byte(`{"type":"Martian","payload":{}}`))
	assert.Error(t, err)
}
