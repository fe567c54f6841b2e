// Package cachemanager wraps patrickmn/go-cache with a typed interface.
package cachemanager

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/crew/internal/log"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Cache is a typed in-memory TTL cache. Entries expire after their TTL and
// are swept by a background janitor.
type Cache[V any] struct {
	useCase string
	cache   *gocache.Cache
}

// New creates a cache for the named use case. Non-positive durations fall
// back to the package defaults.
func New[V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *Cache[V] {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &Cache[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V

	value, found := c.cache.Get(key)
	if !found {
		return zero, false
	}

	v, ok := value.(V)
	if !ok {
		log.Error(log.CatCache, "wrong type assertion when getting value", "useCase", c.useCase, "key", key)
		return zero, false
	}
	return v, true
}

// Set stores a value under key with the given TTL. A non-positive TTL uses
// the cache's default expiration.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.cache.Set(key, value, ttl)
}

// Delete removes a key from the cache.
func (c *Cache[V]) Delete(key string) {
	c.cache.Delete(key)
}

// Len returns the number of unexpired items in the cache.
func (c *Cache[V]) Len() int {
	return c.cache.ItemCount()
}
