// Package metrics provides Prometheus instrumentation for the media proxy
// service.
//
// All metrics are prefixed with "media_proxy_" and registered with the
// default registry through promauto, so importing the package is enough to
// export them on /metrics.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of requests being served
//
// ## Frame Cache Metrics
//
//   - FrameCacheLookups: Counter of lookups by result (exact, nearest, miss)
//   - FrameCacheEvictions: Counter of evicted frames
//   - FrameCacheEntries: Gauge of cached frames
//   - FrameDecodeDuration / FrameDecodeErrors: decoder calls made on a miss
//
// ## Proxy Metrics
//
//   - ProxyRequestsTotal: Counter of requests by result (queued, duplicate)
//   - ProxyJobsTotal: Counter of finished jobs by status
//   - ProxyJobDuration: Histogram of job wall time
//   - ProxyJobsInProgress / ProxyQueueDepth: worker load
//   - ProxyRecords / ProxyBytes: registry contents, refreshed by Collector
//   - ProxyCleanupRemoved / ProxyExternalRemovals: files leaving the cache
//   - ProxyJournalErrors: outcomes that could not be journaled
//
// ## Database Metrics
//
//   - DBQueryTotal / DBQueryDuration: journal queries by operation
//   - DBConnectionsOpen: open SQLite connections
//   - DBSizeBytes: size of the journal's main, WAL and SHM files
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by
// NewFilesystemObserver, which keeps the filesystem package free of a
// dependency on this one.
//
// # Collector
//
// Collector polls a StatsProvider on an interval and copies the values into
// the gauges above, so that gauges reflect state even when nothing is
// happening.
package metrics
