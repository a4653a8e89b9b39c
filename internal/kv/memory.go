package kv

import (
	"context"
	"sync"
)

// subscriber buffer size. Slow consumers drop intermediate snapshots rather
// than block writers; every delivered event still carries the full value, so
// dropped ones are recovered by the next delivery.
const memorySubBuffer = 16

// Memory is an in-process Store used for development and tests. Writes are
// applied under a single mutex, which makes Update trivially atomic.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
	subs map[string]map[*memorySub]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		data: make(map[string][]byte),
		subs: make(map[string]map[*memorySub]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[path]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[path]
	return ok, nil
}

func (m *Memory) Set(ctx context.Context, path string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(path, value)
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var cur []byte
	if v, ok := m.data[path]; ok {
		cur = make([]byte, len(v))
		copy(cur, v)
	}
	next, err := fn(cur)
	if err != nil {
		if err == ErrAbortUpdate {
			return nil
		}
		return err
	}
	if next == nil {
		m.remove(path)
		return nil
	}
	m.put(path, next)
	return nil
}

func (m *Memory) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remove(path)
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, path string) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		store:  m,
		path:   path,
		events: make(chan Event, memorySubBuffer),
	}
	m.mu.Lock()
	if m.subs[path] == nil {
		m.subs[path] = make(map[*memorySub]struct{})
	}
	m.subs[path][sub] = struct{}{}
	m.mu.Unlock()
	return sub, nil
}

// put stores a copy and notifies subscribers. Caller holds mu.
func (m *Memory) put(path string, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[path] = v
	m.notify(Event{Path: path, Value: v})
}

// remove is idempotent; deleting an absent path notifies nobody. Caller
// holds mu.
func (m *Memory) remove(path string) {
	if _, ok := m.data[path]; !ok {
		return
	}
	delete(m.data, path)
	m.notify(Event{Path: path, Deleted: true})
}

func (m *Memory) notify(ev Event) {
	for sub := range m.subs[ev.Path] {
		select {
		case sub.events <- ev:
		default:
			// Subscriber is behind; it will catch up on the next event.
		}
	}
}

type memorySub struct {
	store  *Memory
	path   string
	events chan Event
	once   sync.Once
}

func (s *memorySub) Events() <-chan Event { return s.events }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		if set, ok := s.store.subs[s.path]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.store.subs, s.path)
			}
		}
		s.store.mu.Unlock()
		close(s.events)
	})
	return nil
}
