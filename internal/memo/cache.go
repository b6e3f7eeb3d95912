// Package memo provides the compute-once-per-key cache used by every
// expensive, per-tick-idempotent computation in the core. The event loop is
// single-threaded, so the cache carries no locking; concurrent use requires
// external per-key mutual exclusion.
package memo

// Cache memoizes values by key with a bounded capacity. When the capacity is
// exceeded the oldest inserted entry is evicted first.
type Cache[K comparable, V any] struct {
	capacity int
	entries  map[K]V
	order    []K

	hits     uint64
	misses   uint64
	computes uint64
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Computes uint64
	Size     int
}

// New allocates a cache retaining at most capacity entries.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		entries:  make(map[K]V, capacity),
	}
}

// Get returns the cached value for key.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// GetOrCompute returns the cached value for key, computing and storing it on
// first use. The stored value must be treated as immutable by callers.
func (c *Cache[K, V]) GetOrCompute(key K, compute func() V) V {
	if v, ok := c.entries[key]; ok {
		c.hits++
		return v
	}
	c.misses++
	c.computes++
	v := compute()
	c.put(key, v)
	return v
}

// Put stores a value, evicting the oldest entry beyond capacity.
func (c *Cache[K, V]) Put(key K, value V) {
	if _, ok := c.entries[key]; ok {
		c.entries[key] = value
		return
	}
	c.put(key, value)
}

// Invalidate drops every entry. Used on evaluation-date rollover.
func (c *Cache[K, V]) Invalidate() {
	clear(c.entries)
	c.order = c.order[:0]
}

// Len returns the number of retained entries.
func (c *Cache[K, V]) Len() int {
	return len(c.entries)
}

// Stats returns a copy of the counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:     c.hits,
		Misses:   c.misses,
		Computes: c.computes,
		Size:     len(c.entries),
	}
}

func (c *Cache[K, V]) put(key K, value V) {
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = value
	c.order = append(c.order, key)
}
