// Package cache holds decoded collections for a short time so repeated reads
// skip the document decode.
package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTTL is how long a cached collection stays valid.
const DefaultTTL = 5 * time.Minute

// Cache is a keyed store of values with explicit eviction.
type Cache[V any] interface {
	// Get returns the value for key if present and unexpired.
	Get(key string) (V, bool)
	Put(key string, value V)
	// Generation changes whenever key is evicted, directly or by EvictAll.
	Generation(key string) uint64
	// PutIfUnchanged stores value only if key is still at generation gen,
	// so a value read before an eviction cannot outlive it. It reports false
	// only when the generation moved.
	PutIfUnchanged(key string, value V, gen uint64) bool
	Evict(key string)
	EvictAll()
	// CleanExpired drops expired entries and reports how many it removed.
	CleanExpired() int
	Len() int
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is a Cache whose entries expire a fixed duration after Put.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry[V]

	// seq numbers evictions; gens holds the last one per key and epoch the
	// last EvictAll.
	seq   uint64
	epoch uint64
	gens  map[string]uint64

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewTTL returns a TTL cache. A non-positive ttl falls back to DefaultTTL.
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	meter := otel.Meter("libradoc/cache")
	hits, _ := meter.Int64Counter("cache.hits", metric.WithDescription("Cache lookups served from memory"))
	misses, _ := meter.Int64Counter("cache.misses", metric.WithDescription("Cache lookups that fell through"))

	return &TTL[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
		gens:    make(map[string]uint64),
		hits:    hits,
		misses:  misses,
	}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("cache.key", key))
	if !ok {
		c.misses.Add(context.Background(), 1, attrs)
		var zero V
		return zero, false
	}
	c.hits.Add(context.Background(), 1, attrs)
	return e.value, true
}

func (c *TTL[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *TTL[V]) Generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(key)
}

func (c *TTL[V]) generation(key string) uint64 {
	return max(c.gens[key], c.epoch)
}

func (c *TTL[V]) PutIfUnchanged(key string, value V, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation(key) != gen {
		return false
	}
	c.entries[key] = entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	return true
}

func (c *TTL[V]) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.seq++
	c.gens[key] = c.seq
}

func (c *TTL[V]) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.gens)
	c.seq++
	c.epoch = c.seq
}

func (c *TTL[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Noop caches nothing.
type Noop[V any] struct{}

// NewNoop returns a cache that always misses.
func NewNoop[V any]() Noop[V] { return Noop[V]{} }

func (Noop[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}

func (Noop[V]) Put(string, V) {}

func (Noop[V]) Generation(string) uint64 { return 0 }

func (Noop[V]) PutIfUnchanged(string, V, uint64) bool { return true }

func (Noop[V]) Evict(string) {}

func (Noop[V]) EvictAll() {}

func (Noop[V]) CleanExpired() int { return 0 }

func (Noop[V]) Len() int { return 0 }
