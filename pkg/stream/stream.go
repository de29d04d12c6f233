// Package stream layers typed, filtered subscriptions on top of a
// package journal transport: Subscribe(types) yields a FIFO queue
// receiving only events whose concrete type is in the given set;
// Publish both broadcasts via the journal (if serializable) and
// enqueues into every local subscriber whose filter accepts it;
// PublishLocal bypasses the journal entirely.
package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/journal"
)

// FanoutQueue is a single subscriber's FIFO view of the stream,
// filtered to the event types it asked for.
type FanoutQueue struct {
	ch     chan event.Event
	types  map[string]struct{}
	stream *Stream
}

// C returns the channel of matching events. It closes when the
// subscriber is unsubscribed or the stream is shut down.
func (q *FanoutQueue) C() <-chan event.Event { return q.ch }

func (q *FanoutQueue) accepts(e event.Event) bool {
	if len(q.types) == 0 {
		return true
	}
	_, ok := q.types[e.Type()]
	return ok
}

// Stream is the typed pub/sub layer. Multiple Streams may wrap the
// same underlying Journal; each independently decodes journal bytes
// and fans them out to its own local subscribers.
type Stream struct {
	journal journal.Journal
	// id marks this Stream's own journal publications so the pump can
	// skip them: local subscribers already received those events
	// synchronously from Publish, in publication order.
	id string

	mu          sync.Mutex
	subscribers map[*FanoutQueue]struct{}
	shutdown    bool

	journalEvents <-chan []byte
	unsubJournal  func()
	done          chan struct{}
}

// New wraps j with typed fan-out. It immediately starts a goroutine
// decoding journal bytes into local subscriber deliveries.
func New(j journal.Journal) *Stream {
	events, unsub := j.Subscribe()
	s := &Stream{
		journal:       j,
		id:            uuid.NewString(),
		subscribers:   make(map[*FanoutQueue]struct{}),
		journalEvents: events,
		unsubJournal:  unsub,
		done:          make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer close(s.done)
	for body := range s.journalEvents {
		e, origin, err := decode(body)
		if err != nil || origin == s.id {
			continue
		}
		s.dispatch(e)
	}
}

// Subscribe returns a FanoutQueue receiving only events whose Type()
// is in types. An empty types list matches every event (used by
// `monitor --raw`).
func (s *Stream) Subscribe(types ...string) *FanoutQueue {
	filter := make(map[string]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}

	q := &FanoutQueue{
		ch:     make(chan event.Event, 256),
		types:  filter,
		stream: s,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		close(q.ch)
		return q
	}
	s.subscribers[q] = struct{}{}
	return q
}

// Unsubscribe closes q's queue and stops further delivery to it.
func (s *Stream) Unsubscribe(q *FanoutQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[q]; ok {
		delete(s.subscribers, q)
		close(q.ch)
	}
}

// Publish broadcasts e via the underlying journal (when e is a
// serializable, non-Local event) and delivers it to local subscribers
// synchronously, so a process's own subscribers observe events in
// publication order regardless of journal latency.
func (s *Stream) Publish(e event.Event) error {
	if isSerializable(e) {
		body, err := encode(e, s.id)
		if err != nil {
			return err
		}
		if err := s.journal.Publish(body); err != nil {
			return err
		}
	}
	s.dispatch(e)
	return nil
}

// PublishLocal delivers e only to subscribers of this Stream instance,
// bypassing the journal. Used for the Local* events carrying
// references that cannot cross a process boundary.
func (s *Stream) PublishLocal(e event.Event) {
	s.dispatch(e)
}

func (s *Stream) dispatch(e event.Event) {
	s.mu.Lock()
	// Snapshot subscribers before dispatch to avoid lock-order
	// inversion with a subscriber's own queue operations.
	snapshot := make([]*FanoutQueue, 0, len(s.subscribers))
	for q := range s.subscribers {
		snapshot = append(snapshot, q)
	}
	s.mu.Unlock()

	for _, q := range snapshot {
		if !q.accepts(e) {
			continue
		}
		select {
		case q.ch <- e:
		default:
			// Slow subscriber: drop rather than block publishers.
		}
	}
}

// Shutdown unsubscribes from the journal and closes every local
// subscriber queue. Idempotent.
func (s *Stream) Shutdown() {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return
	}
	s.shutdown = true
	subs := s.subscribers
	s.subscribers = make(map[*FanoutQueue]struct{})
	s.mu.Unlock()

	s.unsubJournal()
	for q := range subs {
		close(q.ch)
	}
	<-s.done
}

func isSerializable(e event.Event) bool {
	switch e.(type) {
	case *event.LocalSuspended, *event.LocalContinued, *event.LocalThrew:
		return false
	default:
		return true
	}
}
