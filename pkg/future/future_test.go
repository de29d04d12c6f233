package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	f := New[string]()
	f.Resolve("value")

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestReject(t *testing.T) {
	f := New[string]()
	f.Reject(errors.New("boom"))

	_, err := f.Wait(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestFirstCompletionWins(t *testing.T) {
	f := New[int]()
	f.Resolve(1)
	f.Resolve(2)
	f.Reject(errors.New("too late"))

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestWaitContextCancel(t *testing.T) {
	f := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPeek(t *testing.T) {
	f := New[int]()
	_, _, resolved := f.Peek()
	assert.False(t, resolved)

	f.Resolve(7)
	v, err, resolved := f.Peek()
	assert.True(t, resolved)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestConcurrentWaiters(t *testing.T) {
	f := New[int]()

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _ := f.Wait(context.Background())
			results[i] = v
		}(i)
	}

	time.Sleep(10 * time.Millisecond)
	f.Resolve(42)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}
