package utils

import (
	"container/list"
	"sync"
	"time"
)

// LRUCache is a bounded map whose entries also expire after ttl.
// It backs the sparse index etag cache and the per-client login limiters.
type LRUCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration
	clock    TimeProvider
	items    map[K]*list.Element
	order    *list.List
	mu       sync.Mutex
}

type lruEntry[K comparable, V any] struct {
	key     K
	value   V
	expires time.Time
}

// NewLRUCache returns a cache holding at most capacity entries.
// A nil clock uses the system clock.
func NewLRUCache[K comparable, V any](capacity int, ttl time.Duration, clock TimeProvider) *LRUCache[K, V] {
	if clock == nil {
		clock = NewRealTimeProvider()
	}
	return &LRUCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		clock:    clock,
		items:    make(map[K]*list.Element),
		order:    list.New(),
	}
}

// Get returns the live value for key and marks it recently used.
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		e := ele.Value.(*lruEntry[K, V])
		if c.clock.Now().Before(e.expires) {
			c.order.MoveToFront(ele)
			return e.value, true
		}
		c.removeElement(ele)
	}
	var zero V
	return zero, false
}

// GetOrAdd returns the live value for key, storing the result of create
// when there is none. create runs under the cache lock.
func (c *LRUCache[K, V]) GetOrAdd(key K, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		e := ele.Value.(*lruEntry[K, V])
		if c.clock.Now().Before(e.expires) {
			c.order.MoveToFront(ele)
			return e.value
		}
		c.removeElement(ele)
	}
	value := create()
	c.insert(key, value)
	return value
}

// Add stores value under key, replacing and refreshing any previous entry.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
	}
	c.insert(key, value)
}

// Remove drops key and reports whether it was present.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ele, ok := c.items[key]; ok {
		c.removeElement(ele)
		return true
	}
	return false
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) insert(key K, value V) {
	c.items[key] = c.order.PushFront(&lruEntry[K, V]{key: key, value: value, expires: c.clock.Now().Add(c.ttl)})
	for c.capacity > 0 && c.order.Len() > c.capacity {
		c.removeElement(c.order.Back())
	}
}

func (c *LRUCache[K, V]) removeElement(e *list.Element) {
	c.order.Remove(e)
	delete(c.items, e.Value.(*lruEntry[K, V]).key)
}
