package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"media-proxy/internal/frame"
	"media-proxy/internal/logging"
	"media-proxy/internal/proxy"
	"media-proxy/internal/streaming"
)

var log = logging.For("handlers")

// ProxyService is the part of the proxy generator the API drives.
type ProxyService interface {
	Request(source string, s proxy.Settings, priority int) (proxy.Record, bool)
	Info(source string, s proxy.Settings) (proxy.Record, bool)
	Path(source string, s proxy.Settings) (string, bool)
	Cleanup(maxAge time.Duration) int
	Stats() (total, ready int, bytes int64)
	Snapshot() []proxy.Record
	QueueLen() int
}

// FrameReader serves decoded frames, from cache when possible.
type FrameReader interface {
	FrameAt(ctx context.Context, source string, t float64) (frame.Frame, error)
	Preload(ctx context.Context, source string, start, end, fps float64) (int, error)
}

// FrameCache exposes cache bookkeeping.
type FrameCache interface {
	Stats() (total, loading int)
	Capacity() int
	Clear()
	Invalidate(source string) int
}

// JobHistory reads the job journal.
type JobHistory interface {
	History(ctx context.Context, source string, limit int) ([]proxy.Outcome, error)
	LastCleanup(ctx context.Context) (time.Time, error)
}

// Options carries request defaults.
type Options struct {
	// Defaults fill in settings a request leaves out.
	Defaults proxy.Settings
	// MaxAge is used by cleanup when the request names none.
	MaxAge time.Duration
	// PreviewMaxWidth bounds the width query parameter of frame previews.
	PreviewMaxWidth int
	// Download bounds proxy file transfers.
	Download streaming.Config
	// Throttle, when set and true, makes preload requests fail fast.
	Throttle func() bool
}

type Handlers struct {
	proxies ProxyService
	frames  FrameReader
	cache   FrameCache
	history JobHistory
	opts    Options
	started time.Time
}

// New wires the API to its backends. history may be nil, in which case the
// history endpoint reports the journal as unavailable.
func New(proxies ProxyService, frames FrameReader, cache FrameCache, history JobHistory, opts Options) *Handlers {
	if opts.Defaults == (proxy.Settings{}) {
		opts.Defaults = proxy.DefaultSettings()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if opts.PreviewMaxWidth <= 0 {
		opts.PreviewMaxWidth = 640
	}
	return &Handlers{
		proxies: proxies,
		frames:  frames,
		cache:   cache,
		history: history,
		opts:    opts,
		started: time.Now(),
	}
}

// RegisterRoutes adds every API route to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/proxies", h.RequestProxy).Methods(http.MethodPost)
	api.HandleFunc("/proxies", h.ListProxies).Methods(http.MethodGet)
	api.HandleFunc("/proxies/info", h.GetProxyInfo).Methods(http.MethodGet)
	api.HandleFunc("/proxies/path", h.GetProxyPath).Methods(http.MethodGet)
	api.HandleFunc("/proxies/file", h.DownloadProxy).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/proxies/stats", h.GetProxyStats).Methods(http.MethodGet)
	api.HandleFunc("/proxies/cleanup", h.CleanupProxies).Methods(http.MethodPost)
	api.HandleFunc("/proxies/history", h.GetHistory).Methods(http.MethodGet)

	api.HandleFunc("/frames", h.GetFrame).Methods(http.MethodGet)
	api.HandleFunc("/frames", h.ClearFrames).Methods(http.MethodDelete)
	api.HandleFunc("/frames/preload", h.PreloadFrames).Methods(http.MethodPost)
	api.HandleFunc("/frames/stats", h.GetFrameStats).Methods(http.MethodGet)
}
