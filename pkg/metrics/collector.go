package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/stream"
)

// invocationState tracks what the Collector needs to fill in labels
// and latencies that a later event doesn't itself carry: Completed
// doesn't know the routine name, and Resumed doesn't know when its
// matching Suspended happened.
type invocationState struct {
	routine     string
	submittedAt time.Time
	suspendedAt time.Time
}

// Collector keeps the package's Prometheus vectors current by
// subscribing to a Stream's lifecycle events. There is no central
// state store to poll — a Broker only knows bytes, not invocation
// identity — so the Collector is event-driven rather than
// ticker-driven.
type Collector struct {
	stream *stream.Stream
	queue  *stream.FanoutQueue
	stopCh chan struct{}
	doneCh chan struct{}

	mu    sync.Mutex
	state map[string]*invocationState
}

// NewCollector builds a Collector over s. Call Start to begin updating
// metrics; call Stop to unsubscribe.
func NewCollector(s *stream.Stream) *Collector {
	return &Collector{
		stream: s,
		queue: s.Subscribe(
			(&event.Submitted{}).Type(),
			(&event.Suspended{}).Type(),
			(&event.Resumed{}).Type(),
			(&event.Completed{}).Type(),
		),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		state:  make(map[string]*invocationState),
	}
}

// Start begins collecting metrics in a background goroutine.
func (c *Collector) Start() {
	go c.run()
}

// Stop unsubscribes from the stream and waits for the background
// goroutine to exit.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.stream.Unsubscribe(c.queue)
	<-c.doneCh
}

func (c *Collector) run() {
	defer close(c.doneCh)
	for {
		select {
		case e, ok := <-c.queue.C():
			if !ok {
				return
			}
			c.handle(e)
		case <-c.stopCh:
			return
		}
	}
}

func (c *Collector) handle(e event.Event) {
	switch ev := e.(type) {
	case *event.Submitted:
		c.mu.Lock()
		c.state[ev.InvocationID()] = &invocationState{routine: ev.Routine, submittedAt: time.Now()}
		c.mu.Unlock()

		InvocationsSubmittedTotal.WithLabelValues(ev.Routine).Inc()
		InvocationsInFlight.WithLabelValues(ev.Routine).Inc()

	case *event.Suspended:
		routine := c.routineOf(ev.InvocationID())

		c.mu.Lock()
		if st, ok := c.state[ev.InvocationID()]; ok {
			st.suspendedAt = time.Now()
		}
		c.mu.Unlock()

		InvocationsSuspendedTotal.WithLabelValues(routine).Inc()

	case *event.Resumed:
		c.mu.Lock()
		st, ok := c.state[ev.InvocationID()]
		var suspendedAt time.Time
		var routine string
		if ok {
			suspendedAt = st.suspendedAt
			routine = st.routine
		}
		c.mu.Unlock()

		if ok && !suspendedAt.IsZero() {
			SuspensionDuration.WithLabelValues(routine).Observe(time.Since(suspendedAt).Seconds())
		}

	case *event.Completed:
		c.mu.Lock()
		st, ok := c.state[ev.InvocationID()]
		delete(c.state, ev.InvocationID())
		c.mu.Unlock()

		routine := "unknown"
		if ok {
			routine = st.routine
		}

		status := "ok"
		if ev.Result.Error() != nil {
			status = "error"
		}
		InvocationsCompletedTotal.WithLabelValues(routine, status).Inc()
		InvocationsInFlight.WithLabelValues(routine).Dec()
		if ok {
			InvocationDuration.WithLabelValues(routine).Observe(time.Since(st.submittedAt).Seconds())
		}
	}
}

// InFlight returns how many invocations have been submitted but not
// yet completed, as observed from the event stream. Worker pools report
// it with their health heartbeats.
func (c *Collector) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.state)
}

func (c *Collector) routineOf(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.state[id]; ok {
		return st.routine
	}
	return "unknown"
}
