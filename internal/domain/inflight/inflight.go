// Package inflight guards per-key operations against concurrent duplicates.
package inflight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrInFlight is returned when the key is already held.
	ErrInFlight = errors.New("operation already in flight")
	// ErrCapacity is returned when the tracker is full.
	ErrCapacity = errors.New("too many operations in flight")
)

// Tracker records keys that have an operation running.
type Tracker interface {
	// Acquire atomically claims key. The returned release func frees it and
	// is safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
	// Held reports whether key is currently claimed.
	Held(key string) bool
	// Size returns the number of claimed keys.
	Size() int64
}

type memoryTracker struct {
	mu      sync.Mutex
	held    map[string]uint64
	seq     uint64
	maxSize int
	size    atomic.Int64
}

// NewTracker creates an in-memory Tracker.
func NewTracker(opts ...Option) Tracker {
	t := &memoryTracker{held: make(map[string]uint64)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *memoryTracker) Acquire(_ context.Context, key string) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.held[key]; ok {
		return nil, ErrInFlight
	}
	if t.maxSize > 0 && len(t.held) >= t.maxSize {
		return nil, ErrCapacity
	}
	t.seq++
	token := t.seq
	t.held[key] = token
	t.size.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() { t.release(key, token) })
	}, nil
}

// release frees key only if it is still held by the same claim.
func (t *memoryTracker) release(key string, token uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.held[key]; ok && cur == token {
		delete(t.held, key)
		t.size.Add(-1)
	}
}

func (t *memoryTracker) Held(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.held[key]
	return ok
}

func (t *memoryTracker) Size() int64 {
	return t.size.Load()
}
