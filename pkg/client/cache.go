package client

import (
	"container/list"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// CanonicalKey renders a context as a stable cache key: attributes are
// serialized as JSON with sorted keys, so the same context maps to the same
// key no matter the insertion order.
func CanonicalKey(evalCtx evaluation.Context) string {
	if len(evalCtx) == 0 {
		return "{}"
	}
	data, err := json.Marshal(evalCtx)
	if err != nil {
		// Non-serializable contexts degrade to a key built from the sorted
		// attribute names; still deterministic, just coarser.
		keys := make([]string, 0, len(evalCtx))
		for k := range evalCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "!" + strings.Join(keys, ",")
	}
	return string(data)
}

type cacheEntry struct {
	key      string
	flags    Flags
	storedAt time.Time
}

// Cache is the SDK-side bounded cache: per-entry TTL with least recently
// used eviction once capacity is exceeded. An expired entry is a miss for
// Get but is retained until evicted or swept, so a failed remote fetch can
// still fall back to the last known value. All methods are safe for
// concurrent use.
type Cache struct {
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	eviction *list.List
	mu       sync.Mutex
}

// NewCache creates a cache holding at most capacity contexts, each fresh
// for ttl. Capacity must be positive, otherwise it panics.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		panic("client cache capacity must be positive")
	}
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		eviction: list.New(),
	}
}

// Get returns the fresh value for key and marks it recently used. An
// expired entry is a miss but stays cached for GetStale.
func (c *Cache) Get(key string) (Flags, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.expired(entry) {
		return nil, false
	}
	c.eviction.MoveToFront(elem)
	return entry.flags, true
}

// GetStale returns the last stored value for key regardless of freshness,
// without touching recency. Used as the fallback when a remote fetch fails.
func (c *Cache) GetStale(key string) (Flags, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*cacheEntry).flags, true
}

// Set stores a value under key, evicting the least recently used entry
// when the cache is over capacity.
func (c *Cache) Set(key string, flags Flags) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.flags = flags
		entry.storedAt = time.Now()
		c.eviction.MoveToFront(elem)
		return
	}

	elem := c.eviction.PushFront(&cacheEntry{key: key, flags: flags, storedAt: time.Now()})
	c.items[key] = elem

	for c.eviction.Len() > c.capacity {
		oldest := c.eviction.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// Remove drops the entry for key if present.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Len returns the number of cached contexts, fresh or stale.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.eviction.Init()
}

// Cleanup sweeps expired entries out and reports how many were removed.
// After a sweep, stale fallback is no longer possible for those contexts.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for elem := c.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if c.expired(elem.Value.(*cacheEntry)) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Must be called with lock held.
func (c *Cache) expired(entry *cacheEntry) bool {
	return c.ttl > 0 && time.Since(entry.storedAt) > c.ttl
}

// Must be called with lock held.
func (c *Cache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}
