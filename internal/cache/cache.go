package cache

import "sync"

// Cache is a generic thread-safe memo map. Entries live until Drain is
// called; there is no eviction, because a cached backend object may still be
// referenced by recorded command buffers.
//
// Cache is safe for concurrent use.
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]V
	hits    uint64
	misses  uint64
}

// New creates an empty cache.
func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{entries: make(map[K]V)}
}

// Get retrieves a value from the cache.
// Returns (value, true) if found, (zero, false) otherwise.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[key]
	return v, ok
}

// GetOrCreate returns the cached value for key, creating it on a miss.
// hit reports whether the value was already cached.
//
// create runs under the lock so two callers never create the same entry;
// the lock is held only for this lookup-or-insert step. A failed create
// caches nothing.
func (c *Cache[K, V]) GetOrCreate(key K, create func(K) (V, error)) (v V, hit bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[key]; ok {
		c.hits++
		return v, true, nil
	}
	c.misses++

	v, err = create(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.entries[key] = v
	return v, false, nil
}

// Drain removes every entry and passes it to fn. It is used to destroy the
// cached objects when their owner goes away.
func (c *Cache[K, V]) Drain(fn func(K, V)) {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[K]V)
	c.mu.Unlock()

	for k, v := range entries {
		fn(k, v)
	}
}

// Len returns the number of entries in the cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Stats returns cache statistics.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{Len: len(c.entries), Hits: c.hits, Misses: c.misses}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Hits is the number of GetOrCreate calls served from the cache.
	Hits uint64
	// Misses is the number of GetOrCreate calls that ran create.
	Misses uint64
}
