package suspension

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/queueio/pkg/future"
)

// resolved is a Suspension whose future fires immediately, used to test
// Gather's aggregation without real timers.
type resolved struct {
	value any
	err   error
}

func (r resolved) Submit(ctx context.Context) (*future.Future[any], error) {
	f := future.New[any]()
	if r.err != nil {
		f.Reject(r.err)
	} else {
		f.Resolve(r.value)
	}
	return f, nil
}

func TestPauseFiresAfterDuration(t *testing.T) {
	start := time.Now()
	f, err := Pause{Duration: 50 * time.Millisecond}.Submit(context.Background())
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestPauseContextCancelStopsTimer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f, err := Pause{Duration: time.Hour}.Submit(ctx)
	require.NoError(t, err)

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer waitCancel()
	_, err = f.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGatherAggregatesInOrder(t *testing.T) {
	g := Gather{
		resolved{value: "first"},
		Pause{Duration: 10 * time.Millisecond},
		resolved{value: "third"},
	}

	f, err := g.Submit(context.Background())
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"first", nil, "third"}, v)
}

func TestGatherFirstErrorWins(t *testing.T) {
	g := Gather{
		resolved{value: "fine"},
		resolved{err: errors.New("first failure")},
		resolved{err: errors.New("second failure")},
	}

	f, err := g.Submit(context.Background())
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	assert.EqualError(t, err, "first failure")
}

func TestGatherEmpty(t *testing.T) {
	f, err := Gather{}.Submit(context.Background())
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{}, v)
}

func TestGatherNested(t *testing.T) {
	g := Gather{
		Gather{resolved{value: 1}, resolved{value: 2}},
		resolved{value: 3},
	}

	f, err := g.Submit(context.Background())
	require.NoError(t, err)

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{1, 2}, 3}, v)
}
