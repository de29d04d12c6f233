// Package receiver implements the fair, weighted, priority-aware,
// capacity-limited consumer side of a broker subscription: a Receiver
// draws Messages from one or more named queues, each exposing
// Priorities priority sub-queues, honoring a weighted round-robin over
// the queue ring and awarding the highest ready priority on every
// cycle.
package receiver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Priorities is the fixed number of priority sub-queues every named
// queue exposes, 0 (lowest) through Priorities-1 (highest).
const Priorities = 10

// Message is an opaque broker-assigned delivery. Identity is pointer
// identity: two messages carrying the same bytes are distinct
// deliveries.
type Message struct {
	body     []byte
	queue    string
	priority int
}

// NewMessage wraps body as a delivery from queue at priority. Broker
// implementations construct Messages; callers only read them.
func NewMessage(body []byte, queue string, priority int) *Message {
	return &Message{body: body, queue: queue, priority: priority}
}

// Body returns the delivered bytes.
func (m *Message) Body() []byte { return m.body }

// Queue returns the name of the queue this message was delivered from.
func (m *Message) Queue() string { return m.queue }

// Priority returns the priority sub-queue this message was delivered from.
func (m *Message) Priority() int { return m.priority }

// QueueSpec names the queues a Receiver draws from and how much
// capacity it has. Duplicate queue names in Queues are significant: a
// queue listed three times is drawn from roughly three times as often
// as one listed once.
type QueueSpec struct {
	Queues      []string
	Concurrency int
}

// ParseQueueSpec parses the "QUEUE[,QUEUE2,...]=CONCURRENCY" format
// the `run` CLI command takes.
func ParseQueueSpec(s string) (QueueSpec, error) {
	eq := strings.LastIndex(s, "=")
	if eq < 0 {
		return QueueSpec{}, fmt.Errorf("receiver: invalid queue spec %q, want QUEUE[,QUEUE...]=CONCURRENCY", s)
	}
	queuesPart, concurrencyPart := s[:eq], s[eq+1:]

	concurrency, err := strconv.Atoi(strings.TrimSpace(concurrencyPart))
	if err != nil || concurrency <= 0 {
		return QueueSpec{}, fmt.Errorf("receiver: invalid concurrency in %q", s)
	}

	var queues []string
	for _, q := range strings.Split(queuesPart, ",") {
		q = strings.TrimSpace(q)
		if q != "" {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		return QueueSpec{}, fmt.Errorf("receiver: must specify at least one queue in %q", s)
	}
	return QueueSpec{Queues: queues, Concurrency: concurrency}, nil
}

// Source is a named queue's priority sub-channels as seen by a
// Receiver; index p of Priorities holds messages at priority level p.
// A Broker builds these from its internal queue storage.
type Source struct {
	Name       string
	Priorities []<-chan []byte
}

// Receiver is the consumer-facing delivery capability of a broker
// subscription.
type Receiver interface {
	// Iterate produces a lazy sequence of messages on the returned
	// channel; it blocks internally while capacity is exhausted or no
	// message is available, and closes only on Shutdown or ctx
	// cancellation.
	Iterate(ctx context.Context) <-chan *Message
	// Pause releases this message's capacity slot without acknowledging
	// it, letting another message fill the slot while this one awaits
	// a suspension.
	Pause(m *Message)
	// Unpause reclaims the capacity slot Pause released.
	Unpause(m *Message)
	// Finish acknowledges the message to the broker and releases its
	// capacity slot.
	Finish(m *Message)
	// Shutdown wakes every blocked Iterate and makes Pause/Unpause/
	// Finish no-ops. Idempotent.
	Shutdown()
}
