package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-proxy/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"

	// A queue this deep means the single worker has fallen far behind.
	degradedQueueDepth = 1000
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Proxy generator
	ProxyRecords int   `json:"proxyRecords"`
	ProxyReady   int   `json:"proxyReady"`
	ProxyBytes   int64 `json:"proxyBytes"`
	QueueDepth   int   `json:"queueDepth"`

	// Frame cache
	CachedFrames  int `json:"cachedFrames"`
	FrameCapacity int `json:"frameCapacity"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A backed-up queue
// reports degraded but still answers 200.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	total, ready, bytes := h.proxies.Stats()
	frames, _ := h.cache.Stats()

	response := HealthResponse{
		Status:        statusHealthy,
		Version:       startup.Version,
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		ProxyRecords:  total,
		ProxyReady:    ready,
		ProxyBytes:    bytes,
		QueueDepth:    h.proxies.QueueLen(),
		CachedFrames:  frames,
		FrameCapacity: h.cache.Capacity(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if response.QueueDepth >= degradedQueueDepth {
		response.Status = statusDegraded
	}

	writeJSONStatus(w, http.StatusOK, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}
