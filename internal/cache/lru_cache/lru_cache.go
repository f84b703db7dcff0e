// Package lru_cache implements a lru cache data structure with optional expiry
package lru_cache

import (
	"fmt"
	"sync"
	"time"
)

// An entry is a node of the intrusive recency list. The sentinel root has no key.
type entry[K comparable, V any] struct {
	next, prev *entry[K, V]
	key        K
	value      V
	expiresAt  time.Time
}

// A LRUCache is a thread-safe implementation of least recently used cache.
// With a ttl set, entries older than ttl are treated as absent and dropped lazily.
type LRUCache[K comparable, V any] struct {
	root     entry[K, V]
	items    map[K]*entry[K, V]
	capacity int
	ttl      time.Duration
	now      func() time.Time
	mu       sync.Mutex
}

// An Option customizes a LRUCache
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL makes entries expire ttl after they were last set
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewLRUCache create empty cache. It should be created only using this command
func NewLRUCache[K comparable, V any](capacity int, opts ...Option) (*LRUCache[K, V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("expected positive number for capacity, got: %d", capacity)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ttl < 0 {
		return nil, fmt.Errorf("expected non-negative ttl, got: %s", o.ttl)
	}

	c := &LRUCache[K, V]{
		items:    make(map[K]*entry[K, V]),
		capacity: capacity,
		ttl:      o.ttl,
		now:      o.now,
	}
	c.root.next = &c.root
	c.root.prev = &c.root
	return c, nil
}

// Set add a new key-value pair to cache, might evict the least recently used pair
func (c *LRUCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		c.unlink(e)
		delete(c.items, key)
	}

	if len(c.items) == c.capacity {
		oldest := c.root.prev
		c.unlink(oldest)
		delete(c.items, oldest.key)
	}

	e := &entry[K, V]{key: key, value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.pushFront(e)
	c.items[key] = e
}

// Get return a value by key and moves this pair to front
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return value, false
	}
	c.unlink(e)
	c.pushFront(e)
	return e.value, true
}

// Delete removes node by key
func (c *LRUCache[K, V]) Delete(key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[key]
	if !ok {
		return fmt.Errorf("can't delete node as no node has key %v", key)
	}
	c.unlink(e)
	delete(c.items, key)
	return nil
}

// Contains return if key is present in cache and not expired
func (c *LRUCache[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok
}

// Flush clears a cache
func (c *LRUCache[K, V]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.root.next = &c.root
	c.root.prev = &c.root
	clear(c.items)
}

// Size returns how many elements are currently cached, expired ones included until touched
func (c *LRUCache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.items)
}

// Capacity returns the maximum capacity of the cache
func (c *LRUCache[K, V]) Capacity() int {
	return c.capacity
}

// Empty returns if there are no elements in cache
func (c *LRUCache[K, V]) Empty() bool {
	return c.Size() == 0
}

// lookup must be called with mu held. Expired entries are removed on the way
func (c *LRUCache[K, V]) lookup(key K) (*entry[K, V], bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && !c.now().Before(e.expiresAt) {
		c.unlink(e)
		delete(c.items, key)
		return nil, false
	}
	return e, true
}

func (c *LRUCache[K, V]) pushFront(e *entry[K, V]) {
	e.prev = &c.root
	e.next = c.root.next
	c.root.next.prev = e
	c.root.next = e
}

func (c *LRUCache[K, V]) unlink(e *entry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next = nil
	e.prev = nil
}
