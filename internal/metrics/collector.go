package metrics

import (
	"sync"
	"time"

	"media-proxy/internal/filesystem"
	"media-proxy/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats calls f.
func (f StatsProviderFunc) GetStats() Stats {
	return f()
}

// Stats holds the current statistics
type Stats struct {
	FrameEntries int
	ProxyRecords int
	ProxyReady   int
	ProxyBytes   int64
	QueueDepth   int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SetDatabasePath makes the collector report the size of the SQLite file
// at path and its WAL and SHM companions. Call before Start.
func (c *Collector) SetDatabasePath(path string) {
	c.dbPath = path
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit.
// Stop must only be called after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	FrameCacheEntries.Set(float64(stats.FrameEntries))
	ProxyRecords.WithLabelValues("total").Set(float64(stats.ProxyRecords))
	ProxyRecords.WithLabelValues("ready").Set(float64(stats.ProxyReady))
	ProxyBytes.Set(float64(stats.ProxyBytes))
	ProxyQueueDepth.Set(float64(stats.QueueDepth))

	logging.Debug("Metrics collected: frames=%d, proxies=%d (ready=%d), bytes=%d, queued=%d",
		stats.FrameEntries, stats.ProxyRecords, stats.ProxyReady, stats.ProxyBytes, stats.QueueDepth)
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	retry := filesystem.DefaultRetryConfig()
	for label, path := range map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	} {
		size := int64(0)
		if info, err := filesystem.StatWithRetry(path, retry); err == nil {
			size = info.Size()
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(size))
	}
}
