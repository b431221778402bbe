package framecache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-proxy/internal/frame"
)

// tickingClock advances one second on every read so last-access stamps are
// strictly ordered by call order.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func testFrame(t *testing.T, ts float64, fill byte) frame.Frame {
	t.Helper()
	pix := make([]byte, 4*2*4)
	for i := range pix {
		pix[i] = fill
	}
	f, err := frame.New(4, 2, pix, ts)
	require.NoError(t, err)
	return f
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-3).Capacity())
	assert.Equal(t, 42, New(42).Capacity())
}

func TestKey(t *testing.T) {
	tests := []struct {
		source string
		t      float64
		want   string
	}{
		{"v", 2.0, "v@2.0"},
		{"v", 2.03, "v@2.0"},
		{"v", 2.05, "v@2.1"},
		{"v", 0, "v@0.0"},
		{"/media/clip.mov", 12.349, "/media/clip.mov@12.3"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.source, tt.t))
		})
	}
}

func TestGet_ExactHitReturnsSameFrame(t *testing.T) {
	c := New(10)
	f := testFrame(t, 2.0, 0xAB)
	c.Put("v", 2.0, f)

	got, ok := c.Get("v", 2.0)
	require.True(t, ok)
	assert.True(t, got.Equal(f))
	assert.Equal(t, f.Pixels(), got.Pixels())
}

func TestGet_QuantizationTolerance(t *testing.T) {
	c := New(10)
	f := testFrame(t, 2.03, 1)
	c.Put("v", 2.03, f)

	got, ok := c.Get("v", 2.0)
	require.True(t, ok)
	assert.True(t, got.Equal(f))

	_, ok = c.Get("v", 3.0)
	assert.False(t, ok)
}

func TestGet_NearestFallbackBoundary(t *testing.T) {
	c := New(10)
	f := testFrame(t, 2.0, 7)
	c.Put("v", 2.0, f)

	got, ok := c.Get("v", 2.4)
	require.True(t, ok)
	assert.True(t, got.Equal(f))

	_, ok = c.Get("v", 2.6)
	assert.False(t, ok)

	_, ok = c.Get("v", 1.4)
	assert.False(t, ok)
}

func TestGet_NearestPicksClosest(t *testing.T) {
	c := New(10)
	c.Put("v", 1.0, testFrame(t, 1.0, 1))
	c.Put("v", 2.0, testFrame(t, 2.0, 2))

	got, ok := c.Get("v", 1.74)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Timestamp())

	got, ok = c.Get("v", 1.26)
	require.True(t, ok)
	assert.Equal(t, 1.0, got.Timestamp())
}

func TestGet_NeverCrossesSources(t *testing.T) {
	c := New(10)
	c.Put("a.mp4", 1.0, testFrame(t, 1.0, 1))

	_, ok := c.Get("a.mp4.bak", 1.0)
	assert.False(t, ok)
	_, ok = c.Get("b.mp4", 1.0)
	assert.False(t, ok)
	_, ok = c.Get("a", 1.0)
	assert.False(t, ok)
}

func TestPut_OverwritesSameQuantizedKey(t *testing.T) {
	c := New(10)
	c.Put("v", 2.01, testFrame(t, 2.01, 1))
	c.Put("v", 1.98, testFrame(t, 1.98, 2))

	total, _ := c.Stats()
	assert.Equal(t, 1, total)

	got, ok := c.Get("v", 2.0)
	require.True(t, ok)
	assert.Equal(t, 1.98, got.Timestamp())
}

func TestPut_EvictsLeastRecentlyAccessed(t *testing.T) {
	clock := newTickingClock()
	c := New(10, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		c.Put("v", float64(i), testFrame(t, float64(i), byte(i)))
	}
	// Touch t=0 so it is no longer the oldest.
	_, ok := c.Get("v", 0)
	require.True(t, ok)

	c.Put("v", 10, testFrame(t, 10, 10))

	total, loading := c.Stats()
	assert.LessOrEqual(t, total, c.Capacity())
	assert.Equal(t, 9, total)
	assert.Zero(t, loading)

	assert.True(t, c.has("v", 0))
	assert.False(t, c.has("v", 1))
	assert.False(t, c.has("v", 2))
	for i := 3; i <= 10; i++ {
		assert.True(t, c.has("v", float64(i)), "t=%d should survive", i)
	}
}

func TestPut_NearestHitDoesNotRefresh(t *testing.T) {
	clock := newTickingClock()
	c := New(5, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		c.Put("v", float64(i), testFrame(t, float64(i), byte(i)))
	}
	// A fallback hit on t=0 must not save it from eviction.
	_, ok := c.Get("v", 0.3)
	require.True(t, ok)

	c.Put("v", 5, testFrame(t, 5, 5))

	assert.False(t, c.has("v", 0))
	assert.True(t, c.has("v", 1))
}

func TestPut_TinyCapacityStaysBounded(t *testing.T) {
	c := New(3)
	for i := 0; i < 20; i++ {
		c.Put("v", float64(i), testFrame(t, float64(i), byte(i)))
		total, _ := c.Stats()
		assert.LessOrEqual(t, total, 3)
	}
}

func TestPut_BoundHoldsAcrossSources(t *testing.T) {
	c := New(20)
	for i := 0; i < 100; i++ {
		c.Put(fmt.Sprintf("clip-%d", i%7), float64(i), testFrame(t, float64(i), 0))
		total, _ := c.Stats()
		require.LessOrEqual(t, total, 20)
	}
}

func TestInvalidate(t *testing.T) {
	c := New(10)
	c.Put("a", 1, testFrame(t, 1, 1))
	c.Put("a", 2, testFrame(t, 2, 1))
	c.Put("b", 1, testFrame(t, 1, 2))

	assert.Equal(t, 2, c.Invalidate("a"))
	assert.Equal(t, 0, c.Invalidate("missing"))

	total, _ := c.Stats()
	assert.Equal(t, 1, total)
	_, ok := c.Get("a", 1)
	assert.False(t, ok)
	_, ok = c.Get("b", 1)
	assert.True(t, ok)
}

func TestClear(t *testing.T) {
	c := New(10)
	c.Put("a", 1, testFrame(t, 1, 1))
	c.Put("b", 1, testFrame(t, 1, 1))

	c.Clear()

	total, loading := c.Stats()
	assert.Zero(t, total)
	assert.Zero(t, loading)
	_, ok := c.Get("a", 1)
	assert.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			source := fmt.Sprintf("clip-%d", g%3)
			for i := 0; i < 200; i++ {
				ts := float64(i) / 10
				c.Put(source, ts, testFrame(t, ts, byte(g)))
				c.Get(source, ts+0.2)
				if i%50 == 0 {
					c.Stats()
				}
			}
		}(g)
	}
	wg.Wait()

	total, _ := c.Stats()
	assert.LessOrEqual(t, total, 50)
}
