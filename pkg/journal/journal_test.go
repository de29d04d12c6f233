package journal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case body, ok := <-ch:
		require.True(t, ok, "subscriber channel closed unexpectedly")
		return body
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a published message")
		return nil
	}
}

func TestFanOutToEverySubscriber(t *testing.T) {
	j := NewMemoryJournal()
	defer j.Shutdown()

	a, unsubA := j.Subscribe()
	b, unsubB := j.Subscribe()
	defer unsubA()
	defer unsubB()

	require.NoError(t, j.Publish([]byte("hello")))

	assert.Equal(t, []byte("hello"), recv(t, a))
	assert.Equal(t, []byte("hello"), recv(t, b))
}

func TestSubscriberSeesOnlyPostSubscribeMessages(t *testing.T) {
	j := NewMemoryJournal()
	defer j.Shutdown()

	require.NoError(t, j.Publish([]byte("before")))

	ch, unsub := j.Subscribe()
	defer unsub()
	require.NoError(t, j.Publish([]byte("after")))

	assert.Equal(t, []byte("after"), recv(t, ch))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	j := NewMemoryJournal()
	defer j.Shutdown()

	ch, unsub := j.Subscribe()
	unsub()
	unsub() // second call is a no-op

	_, ok := <-ch
	assert.False(t, ok)

	// Publishing after the unsubscribe must not panic.
	assert.NoError(t, j.Publish([]byte("into the void")))
}

func TestShutdownClosesSubscribersAndIsIdempotent(t *testing.T) {
	j := NewMemoryJournal()
	ch, unsub := j.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Shutdown()
		}()
	}
	wg.Wait()

	_, ok := <-ch
	assert.False(t, ok)

	// Post-shutdown calls are no-ops.
	assert.NoError(t, j.Publish([]byte("late")))
	late, lateUnsub := j.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	lateUnsub()
	unsub()
}
