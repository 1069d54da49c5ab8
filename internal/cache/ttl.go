// Package cache holds the short-lived in-memory cache used for definition reads.
package cache

import (
	"sync"
	"time"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a threadsafe map whose entries expire after a fixed time-to-live.
// A ttl of 0 or less disables caching.
type TTLCache[K comparable, V any] struct {
	mu    sync.RWMutex
	data  map[K]entry[V]
	ttl   time.Duration
	clock core.Clock
}

func NewTTLCache[K comparable, V any](ttl time.Duration, clock core.Clock) *TTLCache[K, V] {
	return &TTLCache[K, V]{data: make(map[K]entry[V]), ttl: ttl, clock: clock}
}

// Get returns the cached value and whether it was present and unexpired.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	e, ok := c.data[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.mu.Lock()
		// re-check, another writer may have refreshed the entry
		if cur, still := c.data[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return e.value, true
}

func (c *TTLCache[K, V]) Put(key K, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.data[key] = entry[V]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Invalidate drops every entry.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	c.data = make(map[K]entry[V])
	c.mu.Unlock()
}

func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
