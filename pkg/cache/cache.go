// Package cache implements a bounded LRU cache with get-or-load semantics.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is a size-bounded LRU cache safe for concurrent use. Concurrent
// GetOrLoad calls for the same missing key share a single load.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List // front is most recently used
	inflight map[K]*call[V]

	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// call tracks a load in progress for one key
type call[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Stats is a point-in-time snapshot of cache counters
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// New creates a cache holding at most capacity entries. A capacity below one
// is treated as one.
func New[K comparable, V any](capacity int) *Cache[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		inflight: make(map[K]*call[V]),
	}
}

// Get returns the cached value for key, if present
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// GetOrLoad returns the cached value for key or calls load to produce it.
// Failed loads are returned to every waiter and are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		c.mu.Unlock()
		c.hits.Add(1)
		return elem.Value.(*entry[K, V]).value, nil
	}
	if pending, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		c.hits.Add(1)
		<-pending.done
		return pending.value, pending.err
	}

	pending := &call[V]{done: make(chan struct{})}
	c.inflight[key] = pending
	c.mu.Unlock()
	c.misses.Add(1)

	pending.value, pending.err = load()

	c.mu.Lock()
	delete(c.inflight, key)
	if pending.err == nil {
		c.insertLocked(key, pending.value)
	}
	c.mu.Unlock()
	close(pending.done)

	return pending.value, pending.err
}

// Put inserts or replaces the value for key
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(key, value)
}

func (c *Cache[K, V]) insertLocked(key K, value V) {
	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[K, V]).value = value
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[K, V]).key)
	}
}

// Evict removes every entry whose key matches pred and returns how many were removed
func (c *Cache[K, V]) Evict(pred func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if pred(key) {
			c.order.Remove(elem)
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters along with the current entry count
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}
