// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional TOML file named by CONFIG_FILE, then lets
// environment variables override it:
//
//   - CACHE_DIR: proxies and the job journal live here (default: /cache)
//   - PORT: HTTP port for the API and /metrics (default: 8080)
//   - METRICS_ENABLED: serve /metrics and run the collector (default: true)
//   - FFMPEG_PATH: transcoder binary (default: ffmpeg)
//   - FRAME_CACHE_CAPACITY: decoded frames kept in memory, clamped to 10..1000 (default: 100)
//   - PREVIEW_MAX_WIDTH, PREVIEW_MAX_HEIGHT: decoded frame bound (default: 640x360)
//   - PROXY_WIDTH, PROXY_HEIGHT, PROXY_FRAME_RATE, PROXY_QUALITY: default proxy settings
//     (480x270@30 preview; frame rate clamped to 1..120)
//   - PROXY_POLL_INTERVAL: idle worker wait (default: 100ms)
//   - PROXY_MAX_AGE: proxies older than this are cleaned up (default: 24h)
//   - PROXY_CLEANUP_INTERVAL: how often cleanup runs (default: 1h)
//   - HISTORY_RETENTION: how long job outcomes stay in the journal (default: 168h)
//   - WATCH_PROXY_DIR: log proxy files deleted behind our back (default: true)
//   - LOG_HEALTH_CHECKS: log /health requests (default: false)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// File keys are the lower-case forms of the above (cache_dir, proxy_max_age, ...).
// Invalid values are logged and replaced with the default.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
