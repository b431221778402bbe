package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_proxy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Frame cache metrics
var (
	FrameCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_frame_cache_lookups_total",
			Help: "Total number of frame cache lookups by result",
		},
		[]string{"result"}, // "exact", "nearest", "miss"
	)

	FrameCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_frame_cache_evictions_total",
			Help: "Total number of frames evicted from the cache",
		},
	)

	FrameCacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_frame_cache_entries",
			Help: "Number of frames currently held in the cache",
		},
	)

	FrameDecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_proxy_frame_decode_duration_seconds",
			Help:    "Time spent decoding a frame on a cache miss",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	FrameDecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_frame_decode_errors_total",
			Help: "Total number of failed frame decodes",
		},
	)
)

// Proxy pipeline metrics
var (
	ProxyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_proxy_requests_total",
			Help: "Total number of proxy requests by outcome",
		},
		[]string{"result"}, // "queued", "duplicate"
	)

	ProxyJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_proxy_jobs_total",
			Help: "Total number of proxy transcode jobs by terminal status",
		},
		[]string{"status"}, // "ready", "failed", "unavailable"
	)

	ProxyJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_proxy_proxy_job_duration_seconds",
			Help:    "Proxy transcode duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	ProxyJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_proxy_jobs_in_progress",
			Help: "Number of proxy transcode jobs currently running",
		},
	)

	ProxyQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_proxy_queue_depth",
			Help: "Number of proxy jobs waiting in the queue",
		},
	)

	ProxyRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_proxy_proxy_records",
			Help: "Number of proxy records in the registry",
		},
		[]string{"state"}, // "total", "ready"
	)

	ProxyBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_proxy_bytes",
			Help: "Total size of ready proxy files in bytes",
		},
	)

	ProxyCleanupRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_proxy_cleanup_removed_total",
			Help: "Total number of proxy records removed by age-based cleanup",
		},
	)

	ProxyExternalRemovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_proxy_external_removals_total",
			Help: "Proxy files removed from disk by something other than cleanup",
		},
	)

	ProxyJournalErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_proxy_journal_errors_total",
			Help: "Failed writes to the proxy job journal",
		},
	)
)

// Job journal database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_db_queries_total",
			Help: "Total number of journal database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_proxy_db_query_duration_seconds",
			Help:    "Journal database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_db_connections_open",
			Help: "Number of open journal database connections",
		},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_proxy_db_size_bytes",
			Help: "Size of SQLite journal files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_proxy_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retries after a stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_proxy_filesystem_stale_errors_total",
			Help: "Total number of ESTALE errors seen",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_memory_usage_ratio",
			Help: "Heap in use as a fraction of the configured memory limit",
		},
	)

	MemoryThrottled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_proxy_memory_throttled",
			Help: "Whether frame preloading is currently refused for memory pressure (1 = throttled)",
		},
	)

	MemoryPressureEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_proxy_memory_pressure_events_total",
			Help: "Total number of times memory usage crossed the critical watermark",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_proxy_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
