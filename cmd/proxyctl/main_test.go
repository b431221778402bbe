package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"media-proxy/internal/handlers"
	"media-proxy/internal/proxy"
)

type recordedRequest struct {
	method string
	path   string
	query  url.Values
	body   map[string]any
}

// stubServer answers the API routes with canned bodies and records every
// request it sees.
type stubServer struct {
	t      *testing.T
	srv    *httptest.Server
	mu     sync.Mutex
	seen   []recordedRequest
	routes map[string]func(w http.ResponseWriter, r *http.Request)
}

func newStubServer(t *testing.T) *stubServer {
	t.Helper()
	s := &stubServer{t: t, routes: make(map[string]func(http.ResponseWriter, *http.Request))}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *stubServer) handle(method, path string, status int, body any) {
	s.routes[method+" "+path] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (s *stubServer) serve(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query()}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		if err := json.Unmarshal(data, &rec.body); err != nil {
			s.t.Errorf("request body is not JSON: %v", err)
		}
	}
	s.mu.Lock()
	s.seen = append(s.seen, rec)
	s.mu.Unlock()

	if h, ok := s.routes[r.Method+" "+r.URL.Path]; ok {
		h(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *stubServer) last() recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.seen) == 0 {
		s.t.Fatal("no request reached the server")
	}
	return s.seen[len(s.seen)-1]
}

func runCLI(t *testing.T, server string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func sampleRecord(source string, status proxy.Status) proxy.Record {
	s := proxy.DefaultSettings()
	rec := proxy.Record{
		Fingerprint: proxy.Fingerprint(source, s),
		Source:      source,
		Settings:    s,
		Status:      status,
		CreatedAt:   time.Now().Add(-time.Minute),
	}
	switch status {
	case proxy.StatusRunning:
		rec.Progress = 0.42
	case proxy.StatusReady:
		rec.Ready = true
		rec.Progress = 1
		rec.Size = 2_500_000
		rec.OutputPath = "/cache/proxies/proxy_" + rec.Fingerprint + "_30.mp4"
	case proxy.StatusFailed:
		rec.Error = "ffmpeg exited with status 1"
	}
	return rec
}

func TestRequestCommand(t *testing.T) {
	srv := newStubServer(t)
	rec := sampleRecord("/media/a.mov", proxy.StatusPending)
	srv.handle(http.MethodPost, "/api/proxies", http.StatusAccepted, requestResult{Created: true, Record: rec})

	out, _, err := runCLI(t, srv.srv.URL, "request", "/media/a.mov", "--width", "1280", "--quality", "HIGH", "-p", "3")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	requireContains(t, out, "Queued proxy "+rec.Fingerprint[:12])

	got := srv.last()
	if got.body["source"] != "/media/a.mov" || got.body["priority"] != float64(3) {
		t.Fatalf("unexpected body: %v", got.body)
	}
	settings, ok := got.body["settings"].(map[string]any)
	if !ok {
		t.Fatalf("settings missing from body: %v", got.body)
	}
	if settings["width"] != float64(1280) || settings["quality"] != "high" {
		t.Fatalf("unexpected settings: %v", settings)
	}
	if _, sent := settings["height"]; sent {
		t.Fatalf("unset height should be left to the server: %v", settings)
	}
}

func TestRequestCommandExisting(t *testing.T) {
	srv := newStubServer(t)
	rec := sampleRecord("/media/a.mov", proxy.StatusReady)
	srv.handle(http.MethodPost, "/api/proxies", http.StatusOK, requestResult{Created: false, Record: rec})

	out, _, err := runCLI(t, srv.srv.URL, "request", "/media/a.mov")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	requireContains(t, out, "already exists (ready)")
	if _, sent := srv.last().body["settings"]; sent {
		t.Fatal("settings should be omitted when no flag is set")
	}
}

func TestRequestCommandRejectsUnknownQuality(t *testing.T) {
	srv := newStubServer(t)

	_, _, err := runCLI(t, srv.srv.URL, "request", "/media/a.mov", "--quality", "ultra")
	if err == nil {
		t.Fatal("expected an error for an unknown quality")
	}
	if len(srv.seen) != 0 {
		t.Fatal("invalid flags should not reach the server")
	}
}

func TestRequestCommandServerError(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodPost, "/api/proxies", http.StatusBadRequest, map[string]string{"error": "proxy resolution 0x270 must be non-zero"})

	_, _, err := runCLI(t, srv.srv.URL, "request", "/media/a.mov", "--width", "0")
	if err == nil {
		t.Fatal("expected the server error to surface")
	}
	requireContains(t, err.Error(), "400: proxy resolution 0x270 must be non-zero")
}

func TestStatusCommand(t *testing.T) {
	srv := newStubServer(t)
	rec := sampleRecord("/media/a.mov", proxy.StatusReady)
	srv.handle(http.MethodGet, "/api/proxies/info", http.StatusOK, rec)

	out, _, err := runCLI(t, srv.srv.URL, "status", "/media/a.mov", "--fps", "24")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, rec.Fingerprint)
	requireContains(t, out, "Ready")
	requireContains(t, out, rec.OutputPath)
	requireContains(t, out, "2.5 MB")

	q := srv.last().query
	if q.Get("source") != "/media/a.mov" || q.Get("frameRate") != "24" || q.Has("width") {
		t.Fatalf("unexpected query: %v", q)
	}
}

func TestStatusCommandNotFound(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/proxies/info", http.StatusNotFound, map[string]string{"error": "no proxy"})

	_, _, err := runCLI(t, srv.srv.URL, "status", "/media/a.mov")
	if err == nil {
		t.Fatal("expected an error")
	}
	requireContains(t, err.Error(), "proxyctl request")
}

func TestListCommand(t *testing.T) {
	srv := newStubServer(t)
	records := []proxy.Record{
		sampleRecord("/media/alpha.mov", proxy.StatusRunning),
		sampleRecord("/media/beta.mov", proxy.StatusFailed),
	}
	srv.handle(http.MethodGet, "/api/proxies", http.StatusOK, handlers.ProxyList{Proxies: records, Total: 2})

	out, _, err := runCLI(t, srv.srv.URL, "list", "--status", "running")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "alpha.mov")
	requireContains(t, out, "beta.mov")
	requireContains(t, out, "42%")
	requireContains(t, out, "Failed")
	if got := srv.last().query.Get("status"); got != "running" {
		t.Fatalf("status filter = %q", got)
	}
}

func TestListCommandEmptyAndJSON(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/proxies", http.StatusOK, handlers.ProxyList{Proxies: []proxy.Record{}})

	out, _, err := runCLI(t, srv.srv.URL, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "No proxies")

	out, _, err = runCLI(t, srv.srv.URL, "--json", "list")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var list handlers.ProxyList
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("--json output is not JSON: %v\n%s", err, out)
	}
}

func TestStatsCommand(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/proxies/stats", http.StatusOK, handlers.ProxyStats{Total: 1200, Ready: 3, Bytes: 3_000_000, Queued: 4})
	srv.handle(http.MethodGet, "/api/frames/stats", http.StatusOK, handlers.FrameStats{Cached: 50, Capacity: 100})

	out, _, err := runCLI(t, srv.srv.URL, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "1,200")
	requireContains(t, out, "3.0 MB")
	requireContains(t, out, "50 / 100")
}

func TestCleanupCommand(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodPost, "/api/proxies/cleanup", http.StatusOK, map[string]any{"removed": 2, "maxAge": "2h0m0s"})

	out, _, err := runCLI(t, srv.srv.URL, "cleanup", "--max-age", "2h")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	requireContains(t, out, "Removed 2 proxies older than 2h0m0s")
	if got := srv.last().query.Get("maxAge"); got != "2h0m0s" {
		t.Fatalf("maxAge = %q", got)
	}

	if _, _, err := runCLI(t, srv.srv.URL, "cleanup"); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if srv.last().query.Has("maxAge") {
		t.Fatal("maxAge should be left to the server when the flag is unset")
	}
}

func TestHistoryCommand(t *testing.T) {
	srv := newStubServer(t)
	finished := time.Now().Add(-time.Hour)
	srv.handle(http.MethodGet, "/api/proxies/history", http.StatusOK, handlers.HistoryResponse{
		Outcomes: []proxy.Outcome{{
			JobID:      "3f2a9c1e-aaaa-bbbb-cccc-000000000001",
			Source:     "/media/a.mov",
			Settings:   proxy.DefaultSettings(),
			Status:     proxy.StatusFailed,
			Error:      "no such file",
			StartedAt:  finished.Add(-1500 * time.Millisecond),
			FinishedAt: finished,
		}},
		LastCleanup: finished,
	})

	out, _, err := runCLI(t, srv.srv.URL, "history", "/media/a.mov", "-n", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "3f2a9c1e-aaa")
	requireContains(t, out, "Failed: no such file")
	requireContains(t, out, "1.5s")
	requireContains(t, out, "Last cleanup:")

	q := srv.last().query
	if q.Get("source") != "/media/a.mov" || q.Get("limit") != "5" {
		t.Fatalf("unexpected query: %v", q)
	}
}

func TestWatchCommandAppendsWhenNotATerminal(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/proxies", http.StatusOK, handlers.ProxyList{
		Proxies: []proxy.Record{sampleRecord("/media/a.mov", proxy.StatusPending)}, Total: 1,
	})
	srv.handle(http.MethodGet, "/api/proxies/stats", http.StatusOK, handlers.ProxyStats{Total: 1, Queued: 1})

	out, _, err := runCLI(t, srv.srv.URL, "watch", "--interval", "10ms", "--count", "2")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	if n := strings.Count(out, "1 proxies, 0 ready, 1 queued"); n != 2 {
		t.Fatalf("expected 2 snapshots, got %d:\n%s", n, out)
	}
	if strings.Contains(out, clearScreen) {
		t.Fatal("non-terminal output should not contain screen clears")
	}
}

func TestWatchCommandRejectsBadInterval(t *testing.T) {
	srv := newStubServer(t)
	if _, _, err := runCLI(t, srv.srv.URL, "watch", "--interval", "0s"); err == nil {
		t.Fatal("expected an error for a zero interval")
	}
}

func TestFramesCommands(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/frames/stats", http.StatusOK, handlers.FrameStats{Cached: 12, Capacity: 100, Loading: 1})
	srv.handle(http.MethodDelete, "/api/frames", http.StatusOK, map[string]int{"removed": 12})
	srv.handle(http.MethodPost, "/api/frames/preload", http.StatusOK, map[string]int{"decoded": 30})

	out, _, err := runCLI(t, srv.srv.URL, "frames", "stats")
	if err != nil {
		t.Fatalf("frames stats: %v", err)
	}
	requireContains(t, out, "12 of 100 frames cached, 1 loading")

	out, _, err = runCLI(t, srv.srv.URL, "frames", "clear", "/media/a.mov")
	if err != nil {
		t.Fatalf("frames clear: %v", err)
	}
	requireContains(t, out, "Removed 12 cached frames")
	if got := srv.last().query.Get("source"); got != "/media/a.mov" {
		t.Fatalf("source = %q", got)
	}

	out, _, err = runCLI(t, srv.srv.URL, "frames", "preload", "/media/a.mov", "--start", "1", "--end", "2")
	if err != nil {
		t.Fatalf("frames preload: %v", err)
	}
	requireContains(t, out, "Decoded 30 frames")
	body := srv.last().body
	if body["start"] != float64(1) || body["end"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, sent := body["fps"]; sent {
		t.Fatal("fps should be left to the server when the flag is unset")
	}
}

func TestDownloadCommand(t *testing.T) {
	srv := newStubServer(t)
	srv.routes["GET /api/proxies/file"] = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("proxy bytes"))
	}

	dest := filepath.Join(t.TempDir(), "clip.mp4")
	out, _, err := runCLI(t, srv.srv.URL, "download", "/media/a.mov", "--width", "640", "-o", dest)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	requireContains(t, out, "Saved "+dest+" (11 B)")
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "proxy bytes" {
		t.Fatalf("output = %q", data)
	}
	q := srv.last().query
	if q.Get("source") != "/media/a.mov" || q.Get("width") != "640" {
		t.Fatalf("unexpected query: %v", q)
	}

	out, _, err = runCLI(t, srv.srv.URL, "download", "/media/a.mov", "-o", "-")
	if err != nil {
		t.Fatalf("download to stdout: %v", err)
	}
	if out != "proxy bytes" {
		t.Fatalf("stdout = %q", out)
	}
}

func TestDownloadCommandNotReady(t *testing.T) {
	srv := newStubServer(t)
	srv.handle(http.MethodGet, "/api/proxies/file", http.StatusConflict,
		map[string]any{"error": "proxy is not ready", "status": "running", "progress": 0.4})

	dir := t.TempDir()
	dest := filepath.Join(dir, "clip.mp4")
	_, _, err := runCLI(t, srv.srv.URL, "download", "/media/a.mov", "-o", dest)
	if err == nil {
		t.Fatal("expected an error for a running proxy")
	}
	requireContains(t, err.Error(), "not ready (running)")

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("partial files left behind: %v", entries)
	}
}

func TestDefaultProxyName(t *testing.T) {
	if got := defaultProxyName("/media/day1/A001.mov"); got != "A001.proxy.mp4" {
		t.Fatalf("defaultProxyName = %q", got)
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, _, err := runCLI(t, addr, "stats")
	if err == nil {
		t.Fatal("expected a connection error")
	}
	requireContains(t, err.Error(), "connect to "+addr)
}
