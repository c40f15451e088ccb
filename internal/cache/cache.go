// Package cache holds the client-side response cache.
package cache

import (
	"context"
)

// Cache is a keyed store of values of type T.
type Cache[T any] interface {
	// Get returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	Set(ctx context.Context, key string, value T) error

	// Invalidate removes a value. Invalidating a missing key is not an error.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// EvictionNotifier is implemented by caches that remove entries on their own,
// such as on expiry.
type EvictionNotifier interface {
	OnEviction(fn func(key string))
}
