package broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cuemby/queueio/pkg/receiver"
)

// boltReceiver wraps a plain Memory receiver, translating the
// envelope-wrapped bodies Bolt.Enqueue produces back into the caller's
// original payload, and deleting the matching bolt record when the
// message is finished.
type boltReceiver struct {
	inner receiver.Receiver
	bolt  *Bolt

	mu      sync.Mutex
	innerOf map[*receiver.Message]*receiver.Message
	keyOf   map[*receiver.Message]uint64
}

func newBoltReceiver(inner receiver.Receiver, b *Bolt) *boltReceiver {
	return &boltReceiver{
		inner:   inner,
		bolt:    b,
		innerOf: make(map[*receiver.Message]*receiver.Message),
		keyOf:   make(map[*receiver.Message]uint64),
	}
}

func (br *boltReceiver) Iterate(ctx context.Context) <-chan *receiver.Message {
	out := make(chan *receiver.Message)
	go func() {
		defer close(out)
		for inner := range br.inner.Iterate(ctx) {
			var env envelope
			if err := json.Unmarshal(inner.Body(), &env); err != nil {
				// Corrupt record: nothing to deliver it as, drop it.
				br.inner.Finish(inner)
				continue
			}

			outer := receiver.NewMessage(env.Payload, inner.Queue(), inner.Priority())
			br.mu.Lock()
			br.innerOf[outer] = inner
			br.keyOf[outer] = env.BoltKey
			br.mu.Unlock()

			select {
			case out <- outer:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (br *boltReceiver) lookup(m *receiver.Message) (*receiver.Message, bool) {
	br.mu.Lock()
	defer br.mu.Unlock()
	inner, ok := br.innerOf[m]
	return inner, ok
}

func (br *boltReceiver) Pause(m *receiver.Message) {
	if inner, ok := br.lookup(m); ok {
		br.inner.Pause(inner)
	}
}

func (br *boltReceiver) Unpause(m *receiver.Message) {
	if inner, ok := br.lookup(m); ok {
		br.inner.Unpause(inner)
	}
}

func (br *boltReceiver) Finish(m *receiver.Message) {
	br.mu.Lock()
	inner, ok := br.innerOf[m]
	key := br.keyOf[m]
	delete(br.innerOf, m)
	delete(br.keyOf, m)
	br.mu.Unlock()

	if key != 0 {
		br.bolt.deleteRecord(m.Queue(), key)
	}
	if ok {
		br.inner.Finish(inner)
	}
}

func (br *boltReceiver) Shutdown() {
	br.inner.Shutdown()
}
