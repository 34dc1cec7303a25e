// Package cache provides the two-tier cache that fronts reference-data
// lookups: an expirable in-process LRU and an optional Redis tier guarded by a
// circuit breaker.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a size-bounded LRU whose entries expire after a fixed TTL.
type MemoryCache[V any] struct {
	lru *expirable.LRU[string, V]
}

// NewMemoryCache creates a memory cache. A non-positive size falls back to 1000
// entries and a non-positive ttl to 15 minutes.
func NewMemoryCache[V any](size int, ttl time.Duration) *MemoryCache[V] {
	if size <= 0 {
		size = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MemoryCache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key.
func (c *MemoryCache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Remove evicts key.
func (c *MemoryCache[V]) Remove(key string) {
	c.lru.Remove(key)
}

// Purge evicts everything.
func (c *MemoryCache[V]) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *MemoryCache[V]) Len() int {
	return c.lru.Len()
}
