// Package main provides the entry point for the media proxy service.
//
// The service is the caching and scheduling core behind a video editor's
// timeline: it turns source clips into small preview proxies in the
// background and serves decoded frames from a bounded in-memory cache so
// scrubbing stays responsive.
//
// # Application Lifecycle
//
//  1. Configuration Loading: Reads CONFIG_FILE (TOML) and environment variables,
//     prepares the cache directory
//  2. Memory Budget: Derives the Go soft memory limit from MEMORY_LIMIT and
//     MEMORY_RATIO unless GOMEMLIMIT is set
//  3. Job Journal: Opens the SQLite journal of finished proxy jobs
//  4. Component Initialization:
//     - Proxy Generator: Locks the proxy directory and starts its single worker
//     - Frame Cache: Bounded cache of decoded preview frames in front of ffmpeg
//     - Memory Monitor: Drops the frame cache when the heap nears its limit
//     - Metrics Collector: Publishes registry and cache gauges
//  5. HTTP Server Setup: Registers routes and middleware, starts the server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # Background Services
//
//   - Proxy worker: Takes the highest-priority request and runs ffmpeg
//   - Cleanup loop: Removes proxies older than PROXY_MAX_AGE, then records the
//     sweep in the journal and prunes outcomes older than HISTORY_RETENTION
//   - Output watcher: Notices proxy files deleted behind the service's back
//   - Memory monitor: Samples the heap every 5 seconds; preloads are refused
//     above 70% of the limit and cached frames are dropped above 85%
//   - Metrics Collector: Updates Prometheus gauges every 15 seconds
//
// # Graceful Shutdown
//
//  1. Stop accepting new HTTP requests (30s timeout)
//  2. Stop metrics collector
//  3. Stop the memory monitor
//  4. Stop the proxy generator (a running encode finishes and is journaled first)
//  5. Close the job journal
//
// # Build Requirements
//
// The journal uses github.com/mattn/go-sqlite3, so CGO must be enabled.
// FFmpeg must be on PATH (or named by FFMPEG_PATH) for proxies and frame
// previews; the service starts without it and reports failures per job.
//
// # Related Packages
//
//   - [media-proxy/internal/proxy]: Proxy registry, queue, worker and generator
//   - [media-proxy/internal/framecache]: Frame cache and cached frame reader
//   - [media-proxy/internal/decoder]: FFmpeg single-frame decoder
//   - [media-proxy/internal/memory]: Heap limit and memory backpressure
//   - [media-proxy/internal/database]: SQLite job journal
//   - [media-proxy/internal/handlers]: HTTP control API
//   - [media-proxy/internal/middleware]: HTTP middleware (logging, metrics, compression)
//   - [media-proxy/internal/startup]: Configuration and initialization
//
// The proxyctl command in cmd/proxyctl drives the HTTP API from a terminal.
package main
