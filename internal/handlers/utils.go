package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"media-proxy/internal/proxy"
)

// writeJSON encodes v as JSON. Encoding errors are logged since the status
// line has usually gone out already.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// requireSource returns the source query parameter, writing a 400 when it
// is missing.
func requireSource(w http.ResponseWriter, q url.Values) (string, bool) {
	source := strings.TrimSpace(q.Get("source"))
	if source == "" {
		writeJSONError(w, "source is required", http.StatusBadRequest)
		return "", false
	}
	return source, true
}

// settingsFromQuery overlays width, height, frameRate and quality query
// parameters on base.
func settingsFromQuery(q url.Values, base proxy.Settings) (proxy.Settings, error) {
	s := base
	if v := q.Get("width"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return s, fmt.Errorf("invalid width %q", v)
		}
		s.Width = uint32(n)
	}
	if v := q.Get("height"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return s, fmt.Errorf("invalid height %q", v)
		}
		s.Height = uint32(n)
	}
	if v := q.Get("frameRate"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("invalid frameRate %q", v)
		}
		s.FrameRate = f
	}
	if v := q.Get("quality"); v != "" {
		quality, err := proxy.ParseQuality(v)
		if err != nil {
			return s, err
		}
		s.Quality = quality
	}
	return s, s.Validate()
}

// parseFloatParam reads an optional float query parameter.
func parseFloatParam(q url.Values, key string, fallback float64) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}
