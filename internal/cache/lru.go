package cache

import (
	"container/list"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LRUCache is a size bounded cache with a fixed TTL. A TTL of zero or less
// disables it: Get always misses and Set stores nothing.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
	loads   singleflight.Group
	// gens counts deletions per key; a load only stores its result when
	// no Delete happened while it ran.
	gens map[string]uint64
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		gens:    make(map[string]uint64),
	}
}

// Enabled reports whether entries are retained at all.
func (c *LRUCache[T]) Enabled() bool { return c.ttl > 0 }

func (c *LRUCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *LRUCache[T]) Set(key string, data T) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, data)
}

// setIfCurrent stores data unless key was deleted after gen was read.
func (c *LRUCache[T]) setIfCurrent(key string, data T, gen uint64) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] == gen {
		c.setLocked(key, data)
	}
}

func (c *LRUCache[T]) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[key]
}

func (c *LRUCache[T]) setLocked(key string, data T) {
	item := &cacheItem[T]{key: key, data: data, expiresAt: time.Now().Add(c.ttl)}

	if elem, ok := c.items[key]; ok {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	c.items[key] = c.lru.PushFront(item)
	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Load returns the cached value for key or calls fn once for all concurrent
// callers of the same key and caches its result. Errors are not cached, and
// neither is a result whose key was deleted while fn ran.
func (c *LRUCache[T]) Load(key string, fn func() (T, error)) (T, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}

	v, err, _ := c.loads.Do(key, func() (any, error) {
		gen := c.generation(key)
		data, err := fn()
		if err != nil {
			return data, err
		}
		c.setIfCurrent(key, data, gen)
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Delete drops key and forgets any load in flight for it, so the next Load
// reads fresh data and the load in flight does not store its result.
func (c *LRUCache[T]) Delete(key string) {
	c.loads.Forget(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.gens[key]++
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes expired entries and returns how many were removed.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var expired []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			expired = append(expired, elem)
		}
	}
	for _, elem := range expired {
		c.removeElement(elem)
	}
	return len(expired)
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
