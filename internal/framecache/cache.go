package framecache

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"media-proxy/internal/frame"
	"media-proxy/internal/metrics"
)

const (
	// DefaultCapacity is used when New is given a non-positive capacity.
	DefaultCapacity = 100

	// nearestTolerance is the widest gap, in seconds, a fallback hit may span.
	nearestTolerance = 0.5
)

// entry is one cached frame. Its quantized time is the bucket key.
type entry struct {
	frame      frame.Frame
	lastAccess time.Time
	loading    bool
}

// Cache is a bounded, time-quantized frame cache. Entries are bucketed per
// source so a lookup never sees another source's frames. Safe for concurrent
// use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	count    int
	sources  map[string]map[int64]*entry
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the clock used for last-access stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache holding at most capacity frames.
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		capacity: capacity,
		sources:  make(map[string]map[int64]*entry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// quantize rounds t to the nearest tenth of a second, as an integer count
// of tenths.
func quantize(t float64) int64 {
	return int64(math.Round(t * 10))
}

// Key returns the canonical cache key for (source, t).
func Key(source string, t float64) string {
	return fmt.Sprintf("%s@%.1f", source, float64(quantize(t))/10)
}

// Get returns the frame cached for source at t. An exact hit on the
// quantized time refreshes the entry. Otherwise the nearest entry for the
// same source is returned if it lies strictly within half a second, and
// that fallback does not count as an access.
func (c *Cache) Get(source string, t float64) (frame.Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.sources[source]
	if bucket == nil {
		metrics.FrameCacheLookups.WithLabelValues("miss").Inc()
		return frame.Frame{}, false
	}

	if e, ok := bucket[quantize(t)]; ok && !e.loading {
		e.lastAccess = c.now()
		metrics.FrameCacheLookups.WithLabelValues("exact").Inc()
		return e.frame, true
	}

	var (
		best     *entry
		bestDist = math.Inf(1)
	)
	for _, q := range sortedTimes(bucket) {
		e := bucket[q]
		if e.loading {
			continue
		}
		if d := math.Abs(float64(q)/10 - t); d < bestDist {
			best, bestDist = e, d
		}
	}
	if best != nil && bestDist < nearestTolerance {
		metrics.FrameCacheLookups.WithLabelValues("nearest").Inc()
		return best.frame, true
	}

	metrics.FrameCacheLookups.WithLabelValues("miss").Inc()
	return frame.Frame{}, false
}

// Put stores f for source at t, replacing any frame at the same quantized
// time, then evicts the least recently accessed entries if the cache has
// grown past capacity.
func (c *Cache) Put(source string, t float64, f frame.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket := c.sources[source]
	if bucket == nil {
		bucket = make(map[int64]*entry)
		c.sources[source] = bucket
	}
	q := quantize(t)
	if _, exists := bucket[q]; !exists {
		c.count++
	}
	bucket[q] = &entry{frame: f, lastAccess: c.now()}

	if c.count > c.capacity {
		c.evictLocked()
	}
	metrics.FrameCacheEntries.Set(float64(c.count))
}

type victim struct {
	source     string
	q          int64
	key        string
	lastAccess time.Time
}

// evictLocked drops a fifth of capacity, or enough to get back under it if
// that is more.
func (c *Cache) evictLocked() {
	n := c.capacity / 5
	if over := c.count - c.capacity; over > n {
		n = over
	}

	all := make([]victim, 0, c.count)
	for source, bucket := range c.sources {
		for q, e := range bucket {
			all = append(all, victim{
				source:     source,
				q:          q,
				key:        Key(source, float64(q)/10),
				lastAccess: e.lastAccess,
			})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].lastAccess.Equal(all[j].lastAccess) {
			return all[i].lastAccess.Before(all[j].lastAccess)
		}
		return all[i].key < all[j].key
	})

	if n > len(all) {
		n = len(all)
	}
	for _, v := range all[:n] {
		c.removeLocked(v.source, v.q)
	}
	metrics.FrameCacheEvictions.Add(float64(n))
}

func (c *Cache) removeLocked(source string, q int64) {
	bucket := c.sources[source]
	if _, ok := bucket[q]; !ok {
		return
	}
	delete(bucket, q)
	c.count--
	if len(bucket) == 0 {
		delete(c.sources, source)
	}
}

// has reports whether an entry exists at the exact quantized key. It does
// not touch last access.
func (c *Cache) has(source string, t float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sources[source][quantize(t)]
	return ok
}

// Invalidate drops every frame cached for source.
func (c *Cache) Invalidate(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.sources[source])
	delete(c.sources, source)
	c.count -= n
	metrics.FrameCacheEntries.Set(float64(c.count))
	return n
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sources = make(map[string]map[int64]*entry)
	c.count = 0
	metrics.FrameCacheEntries.Set(0)
}

// Stats returns the number of entries and how many of them are still
// loading. Population is synchronous, so loading is always zero today.
func (c *Cache) Stats() (total, loading int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, bucket := range c.sources {
		for _, e := range bucket {
			if e.loading {
				loading++
			}
		}
	}
	return c.count, loading
}

// Capacity returns the configured entry limit.
func (c *Cache) Capacity() int {
	return c.capacity
}

func sortedTimes(bucket map[int64]*entry) []int64 {
	times := make([]int64, 0, len(bucket))
	for q := range bucket {
		times = append(times, q)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}
