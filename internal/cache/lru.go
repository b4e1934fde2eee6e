package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// LRU is a fixed-capacity least-recently-used map.
//
// The eviction callback runs synchronously while the cache lock is held; it
// must not call back into the cache.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	capacity  int
	items     map[K]*list.Element
	evictList *list.List
	onEvict   func(K, V)

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates a cache holding at most capacity entries. capacity below 1
// is treated as 1. onEvict may be nil.
func NewLRU[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	return &LRU[K, V]{
		capacity:  max(capacity, 1),
		items:     make(map[K]*list.Element),
		evictList: list.New(),
		onEvict:   onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Peek returns the value for key without touching recency or stats.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Add inserts or replaces key and marks it most recently used. If the cache
// is over capacity afterwards the least recently used entries are evicted.
// It reports how many entries were evicted.
func (c *LRU[K, V]) Add(key K, value V) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.evictList.MoveToFront(el)
		el.Value.(*entry[K, V]).value = value
		return 0
	}

	c.items[key] = c.evictList.PushFront(&entry[K, V]{key: key, value: value})

	evicted := 0
	for c.evictList.Len() > c.capacity {
		c.removeElement(c.evictList.Back(), true)
		evicted++
	}
	return evicted
}

// Remove deletes key without invoking the eviction callback.
func (c *LRU[K, V]) Remove(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		v := el.Value.(*entry[K, V]).value
		c.removeElement(el, false)
		return v, true
	}
	var zero V
	return zero, false
}

// Drain removes every entry without invoking the eviction callback and
// returns the values from most to least recently used.
func (c *LRU[K, V]) Drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]V, 0, c.evictList.Len())
	for el := c.evictList.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(*entry[K, V]).value)
	}
	c.items = make(map[K]*list.Element)
	c.evictList.Init()
	return out
}

// Keys returns the keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]K, 0, c.evictList.Len())
	for el := c.evictList.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[K, V]).key)
	}
	return keys
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Capacity returns the maximum number of entries.
func (c *LRU[K, V]) Capacity() int { return c.capacity }

// Stats returns the number of Get hits and misses.
func (c *LRU[K, V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *LRU[K, V]) removeElement(el *list.Element, evict bool) {
	c.evictList.Remove(el)
	kv := el.Value.(*entry[K, V])
	delete(c.items, kv.key)
	if evict && c.onEvict != nil {
		c.onEvict(kv.key, kv.value)
	}
}
