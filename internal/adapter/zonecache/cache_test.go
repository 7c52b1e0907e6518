package zonecache

import (
	"sync"
	"testing"

	"github.com/couchcryptid/geoaggregate/internal/observability"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// --- mock for cache tests ---

type countingLocator struct {
	mu    sync.Mutex
	calls int
}

func (m *countingLocator) Locate(p orb.Point) (string, bool) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if p[0] >= 0 && p[0] <= 1 {
		return "square", true
	}
	return "", false
}

func (m *countingLocator) Labels() []string { return []string{"square"} }

// --- CachedLocator tests ---

func TestCachedLocator_Hit(t *testing.T) {
	inner := &countingLocator{}
	metrics := observability.NewMetricsForTesting()
	cached := New(inner, 10, metrics)

	label, ok := cached.Locate(orb.Point{0.5, 0.5})
	assert.True(t, ok)
	assert.Equal(t, "square", label)

	label, ok = cached.Locate(orb.Point{0.5, 0.5})
	assert.True(t, ok)
	assert.Equal(t, "square", label)

	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ZoneCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.ZoneCache.WithLabelValues("miss")), 0)
}

func TestCachedLocator_CachesMisses(t *testing.T) {
	inner := &countingLocator{}
	cached := New(inner, 10, nil)

	_, ok := cached.Locate(orb.Point{5, 5})
	assert.False(t, ok)
	_, ok = cached.Locate(orb.Point{5, 5})
	assert.False(t, ok)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedLocator_DifferentPointsMiss(t *testing.T) {
	inner := &countingLocator{}
	cached := New(inner, 10, nil)

	cached.Locate(orb.Point{0.5, 0.5})
	cached.Locate(orb.Point{0.5, 0.6})

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, cached.Len())
	assert.Equal(t, []string{"square"}, cached.Labels())
}

func TestCachedLocator_Concurrent(t *testing.T) {
	inner := &countingLocator{}
	cached := New(inner, 4, nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				p := orb.Point{float64((i+j)%6) / 4, 0}
				cached.Locate(p)
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, cached.Len(), 4)
}

func TestWrap(t *testing.T) {
	inner := &countingLocator{}
	assert.Same(t, inner, Wrap(inner, 0, nil))
	assert.IsType(t, &CachedLocator{}, Wrap(inner, 8, nil))
}

// --- LRU cache unit tests ---

var (
	pa = orb.Point{1, 1}
	pb = orb.Point{2, 2}
	pc = orb.Point{3, 3}
)

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put(pa, lookup{label: "A", found: true})
	c.put(pb, lookup{label: "B", found: true})

	result, ok := c.get(pa)
	assert.True(t, ok)
	assert.Equal(t, "A", result.label)

	_, ok = c.get(pc)
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put(pa, lookup{label: "A"})
	c.put(pb, lookup{label: "B"})
	c.put(pc, lookup{label: "C"}) // evicts pa

	_, ok := c.get(pa)
	assert.False(t, ok, "pa should have been evicted")

	result, ok := c.get(pb)
	assert.True(t, ok)
	assert.Equal(t, "B", result.label)

	result, ok = c.get(pc)
	assert.True(t, ok)
	assert.Equal(t, "C", result.label)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put(pa, lookup{label: "A"})
	c.put(pb, lookup{label: "B"})

	c.get(pa)

	// pb is now least recently used.
	c.put(pc, lookup{label: "C"})

	_, ok := c.get(pa)
	assert.True(t, ok, "pa was accessed recently, should not be evicted")

	_, ok = c.get(pb)
	assert.False(t, ok, "pb should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put(pa, lookup{label: "A1"})
	c.put(pa, lookup{label: "A2"})

	result, ok := c.get(pa)
	assert.True(t, ok)
	assert.Equal(t, "A2", result.label)
}
