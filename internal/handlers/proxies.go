package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"media-proxy/internal/proxy"
	"media-proxy/internal/streaming"
)

const maxRequestBody = 1 << 20

type proxyRequest struct {
	Source   string         `json:"source"`
	Settings proxy.Settings `json:"settings"`
	Priority int            `json:"priority"`
}

type proxyResponse struct {
	Created bool         `json:"created"`
	Record  proxy.Record `json:"record"`
}

// ProxyList is the body of GET /api/proxies.
type ProxyList struct {
	Proxies []proxy.Record `json:"proxies"`
	Total   int            `json:"total"`
}

// ProxyStats is the body of GET /api/proxies/stats.
type ProxyStats struct {
	Total  int   `json:"total"`
	Ready  int   `json:"ready"`
	Bytes  int64 `json:"bytes"`
	Queued int   `json:"queued"`
}

// HistoryResponse is the body of GET /api/proxies/history.
type HistoryResponse struct {
	Outcomes    []proxy.Outcome `json:"outcomes"`
	LastCleanup time.Time       `json:"lastCleanup,omitzero"`
}

// RequestProxy queues a proxy for a source. Settings omitted from the body
// keep their defaults. Answers 202 when a job was queued and 200 when the
// proxy already existed.
func (h *Handlers) RequestProxy(w http.ResponseWriter, r *http.Request) {
	req := proxyRequest{Settings: h.opts.Defaults}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		writeJSONError(w, "source is required", http.StatusBadRequest)
		return
	}
	if err := req.Settings.Validate(); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, created := h.proxies.Request(req.Source, req.Settings, req.Priority)
	status := http.StatusOK
	if created {
		status = http.StatusAccepted
		log.Debug("Queued proxy %s for %s (priority %d)", record.Fingerprint, req.Source, req.Priority)
	}
	writeJSONStatus(w, status, proxyResponse{Created: created, Record: record})
}

// ListProxies returns every record, oldest first, optionally filtered by
// the status query parameter.
func (h *Handlers) ListProxies(w http.ResponseWriter, r *http.Request) {
	filter := proxy.Status(strings.ToLower(r.URL.Query().Get("status")))
	switch filter {
	case "", proxy.StatusPending, proxy.StatusRunning, proxy.StatusReady, proxy.StatusFailed:
	default:
		writeJSONError(w, fmt.Sprintf("unknown status %q", filter), http.StatusBadRequest)
		return
	}

	records := make([]proxy.Record, 0)
	for _, rec := range h.proxies.Snapshot() {
		if filter == "" || rec.Status == filter {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].Fingerprint < records[j].Fingerprint
	})

	writeJSONStatus(w, http.StatusOK, ProxyList{Proxies: records, Total: len(records)})
}

// GetProxyInfo returns the record for a source at the queried settings.
func (h *Handlers) GetProxyInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, ok := requireSource(w, q)
	if !ok {
		return
	}
	s, err := settingsFromQuery(q, h.opts.Defaults)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, found := h.proxies.Info(source, s)
	if !found {
		writeJSONError(w, "no proxy for this source and settings", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, http.StatusOK, record)
}

// GetProxyPath returns the output path of a ready proxy. A proxy that
// exists but is not ready answers 409 with its status.
func (h *Handlers) GetProxyPath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, ok := requireSource(w, q)
	if !ok {
		return
	}
	s, err := settingsFromQuery(q, h.opts.Defaults)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if path, ready := h.proxies.Path(source, s); ready {
		writeJSONStatus(w, http.StatusOK, map[string]string{"path": path})
		return
	}
	h.writeNotReady(w, source, s)
}

// DownloadProxy sends the proxy file itself, for editors that do not share
// the server's filesystem. Range requests are honored.
func (h *Handlers) DownloadProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, ok := requireSource(w, q)
	if !ok {
		return
	}
	s, err := settingsFromQuery(q, h.opts.Defaults)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	path, ready := h.proxies.Path(source, s)
	if !ready {
		h.writeNotReady(w, source, s)
		return
	}

	res, err := streaming.ServeFile(w, r, path, "video/mp4", h.opts.Download)
	switch {
	case err == nil, errors.Is(err, streaming.ErrClientGone):
	case errors.Is(err, streaming.ErrWriteTimeout):
		log.Warn("Proxy download of %s stalled after %d bytes", source, res.Bytes)
	case errors.Is(err, os.ErrNotExist):
		writeJSONError(w, "proxy file is missing", http.StatusNotFound)
	case res.Bytes == 0:
		log.Error("Failed to read proxy %s: %v", path, err)
		writeJSONError(w, "failed to read proxy", http.StatusInternalServerError)
	default:
		log.Warn("Proxy download of %s cut short after %d bytes: %v", source, res.Bytes, err)
	}
}

// writeNotReady answers 409 with progress for a known proxy that has no
// file yet, and 404 otherwise.
func (h *Handlers) writeNotReady(w http.ResponseWriter, source string, s proxy.Settings) {
	record, found := h.proxies.Info(source, s)
	if !found {
		writeJSONError(w, "no proxy for this source and settings", http.StatusNotFound)
		return
	}
	writeJSONStatus(w, http.StatusConflict, map[string]interface{}{
		"error":    "proxy is not ready",
		"status":   record.Status,
		"progress": record.Progress,
	})
}

// GetProxyStats returns registry totals and the queue depth.
func (h *Handlers) GetProxyStats(w http.ResponseWriter, _ *http.Request) {
	total, ready, bytes := h.proxies.Stats()
	writeJSONStatus(w, http.StatusOK, ProxyStats{
		Total:  total,
		Ready:  ready,
		Bytes:  bytes,
		Queued: h.proxies.QueueLen(),
	})
}

// CleanupProxies removes proxies older than the maxAge query parameter, or
// the configured maximum age when none is given.
func (h *Handlers) CleanupProxies(w http.ResponseWriter, r *http.Request) {
	maxAge := h.opts.MaxAge
	if v := r.URL.Query().Get("maxAge"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeJSONError(w, fmt.Sprintf("invalid maxAge %q", v), http.StatusBadRequest)
			return
		}
		maxAge = d
	}

	removed := h.proxies.Cleanup(maxAge)
	writeJSONStatus(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
		"maxAge":  maxAge.String(),
	})
}

// GetHistory lists journaled job outcomes, newest first. The source query
// parameter narrows the list to one source.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSONError(w, "job journal is not available", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSONError(w, fmt.Sprintf("invalid limit %q", v), http.StatusBadRequest)
			return
		}
		limit = n
	}

	outcomes, err := h.history.History(r.Context(), strings.TrimSpace(q.Get("source")), limit)
	if err != nil {
		log.Error("Failed to read job history: %v", err)
		writeJSONError(w, "failed to read job history", http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []proxy.Outcome{}
	}

	resp := HistoryResponse{Outcomes: outcomes}
	if last, err := h.history.LastCleanup(r.Context()); err != nil {
		log.Warn("Failed to read last cleanup time: %v", err)
	} else {
		resp.LastCleanup = last
	}

	writeJSONStatus(w, http.StatusOK, resp)
}
