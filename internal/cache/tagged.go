package cache

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// Key builds a cache key from an operation name and its argument signature.
// Arguments are escaped so that ("a/b") and ("a", "b") produce different keys.
func Key(operation string, args ...string) string {
	if len(args) == 0 {
		return operation
	}

	var b strings.Builder
	b.WriteString(operation)
	for _, a := range args {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(a))
	}
	return b.String()
}

// Tagged adds tag-based invalidation to a Cache. Each stored entry carries a
// set of tags; invalidating a tag removes every entry stored under it. Tags
// are resolved through an index (tag → keys), never by scanning the cache.
// When the wrapped cache reports evictions the index drops evicted keys, so
// it stays bounded by the cache size.
type Tagged[T any] struct {
	cache Cache[T]

	mu     sync.Mutex
	byTag  map[string]map[string]struct{}
	tagsOf map[string][]string
}

func NewTagged[T any](c Cache[T]) *Tagged[T] {
	t := &Tagged[T]{
		cache:  c,
		byTag:  make(map[string]map[string]struct{}),
		tagsOf: make(map[string][]string),
	}

	if n, ok := c.(EvictionNotifier); ok {
		n.OnEviction(t.forget)
	}

	return t
}

func (t *Tagged[T]) Get(ctx context.Context, key string) (T, bool, error) {
	return t.cache.Get(ctx, key)
}

// Put stores value under key, replacing any tags the key had before.
func (t *Tagged[T]) Put(ctx context.Context, key string, value T, tags ...string) error {
	if err := t.cache.Set(ctx, key, value); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.unindex(key)
	tags = slices.Compact(slices.Sorted(slices.Values(tags)))
	for _, tag := range tags {
		keys, ok := t.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	t.tagsOf[key] = tags

	return nil
}

// InvalidateTags removes every entry carrying any of the tags. It returns
// the number of keys removed.
func (t *Tagged[T]) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	t.mu.Lock()
	var keys []string
	for _, tag := range tags {
		for key := range t.byTag[tag] {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	for _, key := range keys {
		t.unindex(key)
	}
	t.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := t.cache.Invalidate(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}

	return len(keys), errors.Join(errs...)
}

// Invalidate removes a single key.
func (t *Tagged[T]) Invalidate(ctx context.Context, key string) error {
	t.mu.Lock()
	t.unindex(key)
	t.mu.Unlock()

	return t.cache.Invalidate(ctx, key)
}

// Purge removes every indexed entry.
func (t *Tagged[T]) Purge(ctx context.Context) error {
	t.mu.Lock()
	keys := make([]string, 0, len(t.tagsOf))
	for key := range t.tagsOf {
		keys = append(keys, key)
	}
	t.byTag = make(map[string]map[string]struct{})
	t.tagsOf = make(map[string][]string)
	t.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := t.cache.Invalidate(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tagged[T]) Close() error {
	return t.cache.Close()
}

// forget drops an evicted key from the index. The cache calls it outside any
// Tagged method, which never holds mu while calling the cache.
func (t *Tagged[T]) forget(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.unindex(key)
}

// unindex must be called with mu held.
func (t *Tagged[T]) unindex(key string) {
	for _, tag := range t.tagsOf[key] {
		keys := t.byTag[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(t.byTag, tag)
		}
	}
	delete(t.tagsOf, key)
}
