package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// Memory is an in-memory cache backed by otter. Entries expire a fixed TTL
// after they were written.
type Memory[T any] struct {
	cache   *otter.Cache[string, T]
	counter *stats.Counter
	evicted atomic.Pointer[func(key string)]
}

// NewMemory creates a new in-memory cache with the specified TTL and max size.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	m := &Memory[T]{counter: stats.NewCounter()}
	m.cache = otter.Must(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		StatsRecorder:    m.counter,
		ExpiryCalculator: otter.ExpiryWriting[string, T](ttl),
		// runs inside the deletion, before the key can be written again
		OnAtomicDeletion: func(e otter.DeletionEvent[string, T]) {
			if !e.WasEvicted() {
				return
			}
			if fn := m.evicted.Load(); fn != nil {
				(*fn)(e.Key)
			}
		},
	})

	return m, nil
}

// OnEviction registers fn to be called with the key of every entry removed
// by expiry or the size bound. Explicit invalidation does not call it.
func (m *Memory[T]) OnEviction(fn func(key string)) {
	m.evicted.Store(&fn)
}

func (m *Memory[T]) Get(_ context.Context, key string) (T, bool, error) {
	value, ok := m.cache.GetIfPresent(key)
	return value, ok, nil
}

func (m *Memory[T]) Set(_ context.Context, key string, value T) error {
	m.cache.Set(key, value)
	return nil
}

func (m *Memory[T]) Invalidate(_ context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Stats returns the hit and miss counts recorded so far.
func (m *Memory[T]) Stats() (hits, misses uint64) {
	s := m.counter.Snapshot()
	return s.Hits, s.Misses
}

func (m *Memory[T]) Close() error {
	m.cache.InvalidateAll()
	return nil
}
