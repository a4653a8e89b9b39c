// Package rediskv backs the kv.Store contract with Redis. Each path maps to
// one JSON value; change notifications ride Redis pub/sub and carry the full
// value, so subscribers never need a follow-up read.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"handraise/internal/kv"
)

// maxTxRetries bounds the optimistic WATCH loop in Update. Contention is
// human-speed (a handful of people toggling hands) so collisions are rare.
const maxTxRetries = 10

const subBuffer = 16

// notification is the pub/sub payload for one change.
type notification struct {
	Value   json.RawMessage `json:"value,omitempty"`
	Deleted bool            `json:"deleted,omitempty"`
}

// Store implements kv.Store on a Redis client. opTimeout caps every single
// store operation; expirations surface to callers as ordinary errors.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

func New(client *redis.Client, opTimeout time.Duration) *Store {
	return &Store{client: client, opTimeout: opTimeout}
}

func (s *Store) channel(path string) string {
	return "kvchange:" + path
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	v, err := s.client.Get(ctx, path).Bytes()
	if err == redis.Nil {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Exists(ctx, path).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Set(ctx context.Context, path string, value []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.client.Set(ctx, path, value, 0).Err(); err != nil {
		return err
	}
	return s.publish(ctx, path, value, false)
}

// Update runs fn inside a WATCH-guarded transaction: if another writer
// touches the path between the read and the EXEC, the transaction fails and
// the whole read-modify-write is retried with fresh state.
func (s *Store) Update(ctx context.Context, path string, fn kv.UpdateFunc) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for i := 0; i < maxTxRetries; i++ {
		var published []byte
		var deleted, aborted bool

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, path).Bytes()
			if err == redis.Nil {
				cur = nil
			} else if err != nil {
				return err
			}

			next, err := fn(cur)
			if err != nil {
				if err == kv.ErrAbortUpdate {
					aborted = true
					return nil
				}
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil {
					pipe.Del(ctx, path)
					deleted = cur != nil
					return nil
				}
				pipe.Set(ctx, path, next, 0)
				published = next
				return nil
			})
			return err
		}, path)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return err
		}
		if aborted {
			return nil
		}
		if published != nil {
			return s.publish(ctx, path, published, false)
		}
		if deleted {
			return s.publish(ctx, path, nil, true)
		}
		return nil
	}
	return fmt.Errorf("rediskv: update of %s kept colliding after %d attempts", path, maxTxRetries)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.client.Del(ctx, path).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	return s.publish(ctx, path, nil, true)
}

func (s *Store) publish(ctx context.Context, path string, value []byte, deleted bool) error {
	payload, err := json.Marshal(notification{Value: value, Deleted: deleted})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.channel(path), payload).Err()
}

// Subscribe bridges a Redis pub/sub channel into a kv.Subscription. The
// pump goroutine lives until Close or ctx cancellation.
func (s *Store) Subscribe(ctx context.Context, path string) (kv.Subscription, error) {
	ps := s.client.Subscribe(ctx, s.channel(path))
	// Force the SUBSCRIBE round-trip so a dead backend fails here, not on
	// first receive.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &redisSub{
		ps:     ps,
		events: make(chan kv.Event, subBuffer),
	}
	go sub.pump(ctx, path)
	return sub, nil
}

type redisSub struct {
	ps     *redis.PubSub
	events chan kv.Event
	once   sync.Once
}

func (r *redisSub) Events() <-chan kv.Event { return r.events }

func (r *redisSub) Close() error {
	var err error
	r.once.Do(func() {
		err = r.ps.Close()
	})
	return err
}

func (r *redisSub) pump(ctx context.Context, path string) {
	defer close(r.events)
	ch := r.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = r.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var n notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("dropping malformed change notification")
				continue
			}
			ev := kv.Event{Path: path, Value: n.Value, Deleted: n.Deleted}
			select {
			case r.events <- ev:
			default:
				// Receiver is behind; the next full-value event supersedes
				// this one.
			}
		}
	}
}
