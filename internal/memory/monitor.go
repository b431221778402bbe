package memory

import (
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"media-proxy/internal/metrics"
)

// Config controls a Monitor.
type Config struct {
	// LimitBytes is the heap budget. Zero uses the runtime soft limit, and
	// a monitor without any limit never reports pressure.
	LimitBytes int64

	// HighWaterMark is the usage ratio at which ShouldThrottle turns true.
	HighWaterMark float64

	// CriticalWaterMark is the usage ratio that triggers OnCritical.
	CriticalWaterMark float64

	// CheckInterval is the sampling period.
	CheckInterval time.Duration

	// OnCritical runs once each time usage crosses CriticalWaterMark. It is
	// not called again until usage has dropped below HighWaterMark.
	OnCritical func(usage float64)

	// Sample returns the live heap in bytes. Defaults to runtime.MemStats.HeapAlloc.
	Sample func() uint64
}

// DefaultConfig returns the watermarks used by the server.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Stats is a point-in-time view of a Monitor.
type Stats struct {
	Heap      uint64
	Limit     int64
	Usage     float64
	Throttled bool
	Critical  int
}

// Monitor samples heap usage and turns it into backpressure: preloading is
// refused above the high watermark and OnCritical sheds caches above the
// critical one.
type Monitor struct {
	cfg    Config
	limit  int64
	sample func() uint64

	mu        sync.RWMutex
	heap      uint64
	throttled bool
	critical  bool
	episodes  int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. Watermarks left at zero take the defaults.
func NewMonitor(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.HighWaterMark <= 0 {
		cfg.HighWaterMark = def.HighWaterMark
	}
	if cfg.CriticalWaterMark <= 0 {
		cfg.CriticalWaterMark = def.CriticalWaterMark
	}
	if cfg.CriticalWaterMark < cfg.HighWaterMark {
		cfg.CriticalWaterMark = cfg.HighWaterMark
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}

	m := &Monitor{
		cfg:    cfg,
		limit:  cfg.LimitBytes,
		sample: cfg.Sample,
		stop:   make(chan struct{}),
	}
	if m.limit <= 0 {
		m.limit = currentLimit()
	}
	if m.sample == nil {
		m.sample = heapAlloc
	}

	if m.limit > 0 {
		log.Info("Memory monitor watching a %s heap (throttle at %.0f%%, shed at %.0f%%)",
			humanize.IBytes(uint64(m.limit)), cfg.HighWaterMark*100, cfg.CriticalWaterMark*100)
	} else {
		log.Warn("No memory limit configured, memory backpressure disabled")
	}
	return m
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Start samples in the background until Stop. It is a no-op without a limit.
func (m *Monitor) Start() {
	if m.limit <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()

		m.check()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the loop to exit. Safe to call twice.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// check takes one sample and applies the watermarks. It returns the usage ratio.
func (m *Monitor) check() float64 {
	if m.limit <= 0 {
		return 0
	}
	heap := m.sample()
	usage := float64(heap) / float64(m.limit)

	m.mu.Lock()
	m.heap = heap
	wasThrottled := m.throttled
	enterCritical := false

	switch {
	case usage >= m.cfg.CriticalWaterMark:
		m.throttled = true
		if !m.critical {
			m.critical = true
			m.episodes++
			enterCritical = true
		}
	case usage >= m.cfg.HighWaterMark:
		m.throttled = true
	default:
		m.throttled = false
		m.critical = false
	}
	throttled := m.throttled
	m.mu.Unlock()

	metrics.MemoryUsageRatio.Set(usage)
	if throttled {
		metrics.MemoryThrottled.Set(1)
	} else {
		metrics.MemoryThrottled.Set(0)
	}

	switch {
	case enterCritical:
		log.Warn("Memory critical at %.1f%% of limit (%s), shedding caches", usage*100, humanize.IBytes(heap))
		metrics.MemoryPressureEvents.Inc()
		if m.cfg.OnCritical != nil {
			m.cfg.OnCritical(usage)
		}
		go runtime.GC()
	case throttled && !wasThrottled:
		log.Info("Memory high at %.1f%% of limit, refusing preloads", usage*100)
	case !throttled && wasThrottled:
		log.Info("Memory recovered to %.1f%% of limit", usage*100)
	}
	return usage
}

// ShouldThrottle reports whether the last sample was above the high
// watermark, or a critical episode has not yet recovered below it.
func (m *Monitor) ShouldThrottle() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.throttled
}

// Stats returns the last sample.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Heap:      m.heap,
		Limit:     m.limit,
		Throttled: m.throttled,
		Critical:  m.episodes,
	}
	if m.limit > 0 {
		s.Usage = float64(m.heap) / float64(m.limit)
	}
	return s
}
