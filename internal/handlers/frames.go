package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// maxPreloadFrames bounds a single preload request.
const maxPreloadFrames = 5000

type preloadRequest struct {
	Source string  `json:"source"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	FPS    float64 `json:"fps"`
}

// FrameStats is the body of GET /api/frames/stats.
type FrameStats struct {
	Cached   int `json:"cached"`
	Loading  int `json:"loading"`
	Capacity int `json:"capacity"`
}

// GetFrame serves the frame of source nearest to t as a PNG. The width
// query parameter scales the preview down, keeping the aspect ratio.
func (h *Handlers) GetFrame(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, ok := requireSource(w, q)
	if !ok {
		return
	}
	t, err := parseFloatParam(q, "t", 0)
	if err != nil || t < 0 {
		writeJSONError(w, fmt.Sprintf("invalid t %q", q.Get("t")), http.StatusBadRequest)
		return
	}

	width := 0
	if v := q.Get("width"); v != "" {
		width, err = strconv.Atoi(v)
		if err != nil || width <= 0 {
			writeJSONError(w, fmt.Sprintf("invalid width %q", v), http.StatusBadRequest)
			return
		}
		width = min(width, h.opts.PreviewMaxWidth)
	}

	f, err := h.frames.FrameAt(r.Context(), source, t)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		log.Warn("Frame %s@%.3f unavailable: %v", source, t, err)
		writeJSONError(w, "failed to decode frame", http.StatusBadGateway)
		return
	}
	if f.IsZero() {
		writeJSONError(w, "no frame at this time", http.StatusNotFound)
		return
	}
	if width > 0 {
		f = f.Fit(width, int(f.Height()))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Frame-Timestamp", strconv.FormatFloat(f.Timestamp(), 'f', 3, 64))
	if err := imaging.Encode(w, f.Image(), imaging.PNG); err != nil {
		log.Error("Failed to encode frame %s@%.3f: %v", source, t, err)
	}
}

// PreloadFrames decodes a time range of a source into the cache and
// reports how many frames were decoded.
func (h *Handlers) PreloadFrames(w http.ResponseWriter, r *http.Request) {
	req := preloadRequest{FPS: h.opts.Defaults.FrameRate}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	req.Source = strings.TrimSpace(req.Source)
	switch {
	case req.Source == "":
		writeJSONError(w, "source is required", http.StatusBadRequest)
		return
	case req.Start < 0 || req.End < req.Start:
		writeJSONError(w, "range must satisfy 0 <= start <= end", http.StatusBadRequest)
		return
	case req.FPS <= 0:
		writeJSONError(w, "fps must be positive", http.StatusBadRequest)
		return
	case (req.End-req.Start)*req.FPS > maxPreloadFrames:
		writeJSONError(w, fmt.Sprintf("range covers more than %d frames", maxPreloadFrames), http.StatusBadRequest)
		return
	}

	if h.opts.Throttle != nil && h.opts.Throttle() {
		w.Header().Set("Retry-After", "30")
		writeJSONError(w, "server is under memory pressure", http.StatusServiceUnavailable)
		return
	}

	decoded, err := h.frames.Preload(r.Context(), req.Source, req.Start, req.End, req.FPS)
	if err != nil {
		log.Warn("Preload of %s interrupted after %d frames: %v", req.Source, decoded, err)
		writeJSONError(w, "preload interrupted", http.StatusServiceUnavailable)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]int{"decoded": decoded})
}

// GetFrameStats returns frame cache occupancy.
func (h *Handlers) GetFrameStats(w http.ResponseWriter, _ *http.Request) {
	total, loading := h.cache.Stats()
	writeJSONStatus(w, http.StatusOK, FrameStats{
		Cached:   total,
		Loading:  loading,
		Capacity: h.cache.Capacity(),
	})
}

// ClearFrames drops the cached frames of the source query parameter, or
// every cached frame when no source is given.
func (h *Handlers) ClearFrames(w http.ResponseWriter, r *http.Request) {
	if source := strings.TrimSpace(r.URL.Query().Get("source")); source != "" {
		writeJSONStatus(w, http.StatusOK, map[string]int{"removed": h.cache.Invalidate(source)})
		return
	}

	total, _ := h.cache.Stats()
	h.cache.Clear()
	log.Info("Cleared %d cached frames", total)
	writeJSONStatus(w, http.StatusOK, map[string]int{"removed": total})
}
