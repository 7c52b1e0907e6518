// Package zonecache memoizes point-in-zone lookups. Linelist coordinates are
// usually postcode centroids, so the same point recurs many times per run.
package zonecache

import (
	"sync"

	"github.com/couchcryptid/geoaggregate/internal/domain"
	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/paulmach/orb"
)

// CachedLocator wraps a ZoneLocator with an in-memory LRU cache. Misses are
// cached too: the zone set never changes under a locator.
type CachedLocator struct {
	inner   domain.ZoneLocator
	cache   *lruCache
	metrics *observability.Metrics
}

// New creates a cache decorator around a locator. metrics may be nil.
func New(inner domain.ZoneLocator, maxEntries int, metrics *observability.Metrics) *CachedLocator {
	return &CachedLocator{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

// Wrap returns inner unchanged when maxEntries is not positive.
func Wrap(inner domain.ZoneLocator, maxEntries int, metrics *observability.Metrics) domain.ZoneLocator {
	if maxEntries <= 0 {
		return inner
	}
	return New(inner, maxEntries, metrics)
}

func (c *CachedLocator) Locate(p orb.Point) (string, bool) {
	if r, ok := c.cache.get(p); ok {
		c.observe("hit")
		return r.label, r.found
	}
	c.observe("miss")
	label, found := c.inner.Locate(p)
	c.cache.put(p, lookup{label: label, found: found})
	return label, found
}

func (c *CachedLocator) Labels() []string { return c.inner.Labels() }

// Len reports the number of cached points.
func (c *CachedLocator) Len() int {
	c.cache.mu.Lock()
	defer c.cache.mu.Unlock()
	return len(c.cache.entries)
}

func (c *CachedLocator) observe(result string) {
	if c.metrics != nil {
		c.metrics.ZoneCache.WithLabelValues(result).Inc()
	}
}

type lookup struct {
	label string
	found bool
}

// lruCache is a thread-safe LRU of lookups keyed by exact coordinate.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[orb.Point]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   orb.Point
	value lookup
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: max(maxEntries, 1),
		entries:    make(map[orb.Point]*entry),
	}
}

func (c *lruCache) get(key orb.Point) (lookup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return lookup{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key orb.Point, value lookup) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
