// Package cache provides an in-memory TTL cache backed by go-cache.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// InMemory is a thread-safe typed cache with a fixed TTL.
type InMemory[T any] struct {
	store *gocache.Cache
	ttl   time.Duration
}

// New creates a cache whose entries expire after ttl. Expired entries are
// purged every ttl.
func New[T any](ttl time.Duration) *InMemory[T] {
	return &InMemory[T]{
		store: gocache.New(ttl, ttl),
		ttl:   ttl,
	}
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.store.Delete(key)
}

// Len returns the number of entries, expired ones included until purged.
func (c *InMemory[T]) Len() int {
	return c.store.ItemCount()
}
