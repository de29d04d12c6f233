package broker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/result"
)

// boltRecord is what a durable queue's bbolt bucket actually stores,
// keyed by an auto-incrementing sequence so enqueue order survives a
// restart.
type boltRecord struct {
	Priority int    `json:"priority"`
	Payload  []byte `json:"payload"`
}

// envelope is the body every Bolt-durable message carries through the
// in-process Memory broker it delegates live delivery to: the bolt key
// needed to delete the persisted record once the message is finished,
// plus the caller's original payload. BoltKey is 0 for messages
// enqueued to a non-durable queue, which are never persisted.
type envelope struct {
	BoltKey uint64 `json:"bolt_key"`
	Payload []byte `json:"payload"`
}

// Bolt is the durable Broker: a queue created with Durable() persists
// every enqueued message to a `go.etcd.io/bbolt` bucket before it
// becomes visible to receivers, and deletes the persisted record only
// once a consumer finishes it. Live delivery — priority
// sub-queues, the weighted round-robin ring, capacity — is delegated
// entirely to an embedded Memory broker; Bolt only adds the
// write-ahead persistence and startup replay Memory lacks.
type Bolt struct {
	mu      sync.Mutex
	db      *bbolt.DB
	inner   *Memory
	durable map[string]bool
}

// NewBolt opens (creating if necessary) the bbolt database at path and
// replays any durable queue's un-acknowledged records back into the
// embedded Memory broker.
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, result.Errorf(result.KindTransport, fmt.Sprintf("broker: opening bolt db %s", path), err)
	}
	b := &Bolt{db: db, inner: NewMemory(), durable: make(map[string]bool)}
	if err := b.replay(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) replay() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, bucket *bbolt.Bucket) error {
			queue := string(name)
			b.durable[queue] = true
			if err := b.inner.Create(queue, Durable()); err != nil {
				return err
			}
			return bucket.ForEach(func(k, v []byte) error {
				var rec boltRecord
				if err := json.Unmarshal(v, &rec); err != nil {
					return fmt.Errorf("broker: decoding bolt record in %q: %w", queue, err)
				}
				body, err := json.Marshal(envelope{BoltKey: binary.BigEndian.Uint64(k), Payload: rec.Payload})
				if err != nil {
					return err
				}
				return b.inner.Enqueue(body, queue, rec.Priority)
			})
		})
	})
}

func (b *Bolt) Create(queue string, opts ...CreateOption) error {
	cfg := resolveCreateConfig(opts)

	b.mu.Lock()
	existing, seen := b.durable[queue]
	if seen && existing != cfg.durable {
		b.mu.Unlock()
		return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q already exists with incompatible arguments (durable=%v)", queue, existing), nil)
	}
	b.durable[queue] = cfg.durable
	b.mu.Unlock()

	if cfg.durable {
		if err := b.db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(queue))
			return err
		}); err != nil {
			return result.Errorf(result.KindTransport, fmt.Sprintf("broker: creating bolt bucket for %q", queue), err)
		}
	}
	return b.inner.Create(queue, opts...)
}

func (b *Bolt) Enqueue(body []byte, queue string, priority int) error {
	b.mu.Lock()
	durable := b.durable[queue]
	b.mu.Unlock()

	if !durable {
		env, err := json.Marshal(envelope{Payload: body})
		if err != nil {
			return err
		}
		return b.inner.Enqueue(env, queue, priority)
	}

	var key uint64
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(queue))
		if bucket == nil {
			return result.Errorf(result.KindQueue, fmt.Sprintf("broker: queue %q does not exist", queue), nil)
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key = seq
		rec, err := json.Marshal(boltRecord{Priority: priority, Payload: body})
		if err != nil {
			return err
		}
		return bucket.Put(boltKeyBytes(key), rec)
	}); err != nil {
		return err
	}

	env, err := json.Marshal(envelope{BoltKey: key, Payload: body})
	if err != nil {
		return err
	}
	return b.inner.Enqueue(env, queue, priority)
}

func (b *Bolt) Delete(queue string) error {
	b.mu.Lock()
	delete(b.durable, queue)
	b.mu.Unlock()

	if err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(queue)) == nil {
			return nil
		}
		return tx.DeleteBucket([]byte(queue))
	}); err != nil {
		return result.Errorf(result.KindTransport, fmt.Sprintf("broker: deleting bolt bucket for %q", queue), err)
	}
	return b.inner.Delete(queue)
}

func (b *Bolt) Purge(queue string) error {
	if err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(queue))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return result.Errorf(result.KindTransport, fmt.Sprintf("broker: purging bolt bucket for %q", queue), err)
	}
	return b.inner.Purge(queue)
}

func (b *Bolt) Receive(spec receiver.QueueSpec) (receiver.Receiver, error) {
	inner, err := b.inner.Receive(spec)
	if err != nil {
		return nil, err
	}
	return newBoltReceiver(inner, b), nil
}

func (b *Bolt) Shutdown() {
	b.inner.Shutdown()
	b.db.Close()
}

func (b *Bolt) deleteRecord(queue string, key uint64) {
	_ = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(queue))
		if bucket == nil {
			return nil
		}
		return bucket.Delete(boltKeyBytes(key))
	})
}

func boltKeyBytes(key uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, key)
	return buf
}
