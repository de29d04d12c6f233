// Package broker moves invocation bytes between producers and
// workers: enqueue, create/delete/purge a named queue, and spawn
// Receivers over a QueueSpec. Two implementations ship: Memory
// (in-process, non-durable) and Bolt (bbolt-backed, for when Create is
// asked for a durable queue).
package broker

import (
	"fmt"
	"sync"

	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/result"
)

// Broker is the abstract transport capability every worker and
// producer talks to. Messages are at-least-once: a routine must be
// idempotent.
type Broker interface {
	// Enqueue submits body to queue at priority. Durable if the queue
	// was created durable.
	Enqueue(body []byte, queue string, priority int) error
	// Create is idempotent; it fails with an incompatible-arguments
	// error if queue already exists with a different durability.
	Create(queue string, opts ...CreateOption) error
	// Delete removes a queue entirely.
	Delete(queue string) error
	// Purge discards every pending message in queue. Best-effort with
	// respect to messages already handed to an in-flight receiver.
	Purge(queue string) error
	// Receive spawns a Receiver over spec's queues.
	Receive(spec receiver.QueueSpec) (receiver.Receiver, error)
	// Shutdown is idempotent.
	Shutdown()
}

// CreateOption customizes Create.
type CreateOption func(*createConfig)

type createConfig struct {
	durable bool
}

// Durable requests a durable queue: messages enqueued to it survive a
// process restart when the Broker implementation supports it (Bolt
// does; Memory accepts the option but cannot honor it).
func Durable() CreateOption {
	return func(c *createConfig) { c.durable = true }
}

func resolveCreateConfig(opts []CreateOption) createConfig {
	var c createConfig
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// namedQueue is one queue's Priorities sub-queues plus the durability
// it was created with, tracked so a second, conflicting Create call
// can be rejected.
type namedQueue struct {
	priorities [receiver.Priorities]*byteQueue
	durable    bool
}

func newNamedQueue(durable bool) *namedQueue {
	nq := &namedQueue{durable: durable}
	for p := range nq.priorities {
		nq.priorities[p] = newByteQueue()
	}
	return nq
}

func (nq *namedQueue) sources(name string) receiver.Source {
	chans := make([]<-chan []byte, receiver.Priorities)
	for p, q := range nq.priorities {
		chans[p] = q.out
	}
	return receiver.Source{Name: name, Priorities: chans}
}

func (nq *namedQueue) close() {
	for _, q := range nq.priorities {
		q.close()
	}
}

// Memory is the non-durable, in-process Broker. It is the default
// Broker and the one backing every `memory:` configured runtime.
type Memory struct {
	mu       sync.Mutex
	queues   map[string]*namedQueue
	shutdown bool
}

// NewMemory returns an empty, ready-to-use Memory broker.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]*namedQueue)}
}

func (b *Memory) Enqueue(body []byte, queue string, priority int) error {
	if priority < 0 || priority >= receiver.Priorities {
		return result.Errorf(result.KindQueue, fmt.Sprintf("broker: priority %d out of range [0,%d)", priority, receiver.Priorities), nil)
	}
	b.mu.Lock()
	nq, ok := b.queues[queue]
	b.mu.Unlock()
	if !ok {
		return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q does not exist", queue), nil)
	}
	nq.priorities[priority].push(body)
	return nil
}

func (b *Memory) Create(queue string, opts ...CreateOption) error {
	cfg := resolveCreateConfig(opts)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.queues[queue]; ok {
		if existing.durable != cfg.durable {
			return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q already exists with incompatible arguments (durable=%v)", queue, existing.durable), nil)
		}
		return nil
	}
	b.queues[queue] = newNamedQueue(cfg.durable)
	return nil
}

func (b *Memory) Delete(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	nq, ok := b.queues[queue]
	if !ok {
		return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q does not exist", queue), nil)
	}
	nq.close()
	delete(b.queues, queue)
	return nil
}

func (b *Memory) Purge(queue string) error {
	b.mu.Lock()
	nq, ok := b.queues[queue]
	b.mu.Unlock()
	if !ok {
		return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q does not exist", queue), nil)
	}
	for _, q := range nq.priorities {
		q.drain()
	}
	return nil
}

func (b *Memory) Receive(spec receiver.QueueSpec) (receiver.Receiver, error) {
	if len(spec.Queues) == 0 {
		return nil, result.Errorf(result.KindConfiguration, "broker: must specify at least one queue", nil)
	}

	b.mu.Lock()
	var missing []string
	sources := make([]receiver.Source, 0, len(spec.Queues))
	for _, name := range spec.Queues {
		nq, ok := b.queues[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		sources = append(sources, nq.sources(name))
	}
	b.mu.Unlock()

	if len(missing) > 0 {
		return nil, result.Errorf(result.KindQueue, fmt.Sprintf("broker: queues do not exist: %v", missing), nil)
	}
	return receiver.New(sources, spec.Concurrency)
}

func (b *Memory) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shutdown {
		return
	}
	b.shutdown = true
	for _, nq := range b.queues {
		nq.close()
	}
	b.queues = make(map[string]*namedQueue)
}
