// Package memory keeps the server inside its container memory limit.
//
// [ConfigureFromEnv] turns the container limit into a Go soft memory limit
// at startup:
//
//   - GOMEMLIMIT: standard Go variable, takes precedence when set.
//   - MEMORY_LIMIT: container limit in bytes, typically from the Kubernetes
//     Downward API (resourceFieldRef limits.memory).
//   - MEMORY_RATIO: fraction of MEMORY_LIMIT given to the heap, default 0.85.
//     The rest is left for ffmpeg child processes, which are not part of the
//     Go heap.
//
// A [Monitor] samples the heap against that limit. Above the high watermark
// [Monitor.ShouldThrottle] reports true and the server refuses frame
// preloads. Crossing the critical watermark calls Config.OnCritical once per
// episode; the server uses it to drop the frame cache.
//
//	budget := memory.ConfigureFromEnv()
//	mon := memory.NewMonitor(memory.Config{
//	    LimitBytes: budget.HeapLimit,
//	    OnCritical: func(float64) { cache.Clear() },
//	})
//	mon.Start()
//	defer mon.Stop()
//
// Usage is exported as media_proxy_memory_usage_ratio,
// media_proxy_memory_throttled and media_proxy_memory_pressure_events_total.
package memory
