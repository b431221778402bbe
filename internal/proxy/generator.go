package proxy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"media-proxy/internal/filesystem"
	"media-proxy/internal/logging"
	"media-proxy/internal/metrics"
)

var log = logging.For("proxy")

// DefaultPollInterval bounds how long an idle worker waits before looking
// at the queue again, and so how long Close waits on an idle worker.
const DefaultPollInterval = 100 * time.Millisecond

const lockFileName = ".lock"

// ErrLocked is returned by New when another generator owns the directory.
var ErrLocked = errors.New("proxy directory is locked by another process")

// Config configures a Generator.
type Config struct {
	// Dir holds the proxy files. It is created if missing.
	Dir string
	// FFmpegPath is the transcoder binary; empty means "ffmpeg" on PATH.
	FFmpegPath string
	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// Journal, if set, receives an Outcome for every finished job.
	Journal Journal
	// WatchOutputs logs and counts proxy files removed behind our back.
	WatchOutputs bool
	// AfterCleanup, if set, is called at the end of every Cleanup with the
	// number of records removed and the sweep time.
	AfterCleanup func(removed int, at time.Time)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generator owns the registry, the queue and the single worker that turns
// queued requests into proxy files.
type Generator struct {
	dir      string
	registry *registry
	queue    *queue
	tc       *transcoder
	journal  Journal
	poll     time.Duration
	now      func() time.Time
	retry    filesystem.RetryConfig
	lock     *flock.Flock
	watcher  *outputWatcher
	after    func(removed int, at time.Time)

	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New creates the proxy directory, locks it and starts the worker.
func New(cfg Config) (*Generator, error) {
	if cfg.Dir == "" {
		return nil, errors.New("proxy directory is required")
	}
	dir := filepath.Clean(cfg.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create proxy directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("failed to lock proxy directory: %w", err)
	}
	if !locked {
		_ = lock.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}

	g := &Generator{
		dir:      dir,
		registry: newRegistry(),
		queue:    newQueue(),
		tc:       newTranscoder(cfg.FFmpegPath),
		journal:  cfg.Journal,
		poll:     cfg.PollInterval,
		now:      cfg.Now,
		retry:    filesystem.DefaultRetryConfig(),
		lock:     lock,
		after:    cfg.AfterCleanup,
		stop:     make(chan struct{}),
	}
	if g.poll <= 0 {
		g.poll = DefaultPollInterval
	}
	if g.now == nil {
		g.now = time.Now
	}

	if cfg.WatchOutputs {
		w, err := newOutputWatcher(dir, g.registry)
		if err != nil {
			log.Warn("Proxy output watcher disabled: %v", err)
		} else {
			g.watcher = w
		}
	}

	g.wg.Add(1)
	go g.run()

	return g, nil
}

// Dir returns the directory proxies are written to.
func (g *Generator) Dir() string {
	return g.dir
}

// Request queues a proxy of source at settings unless one already exists
// for the same fingerprint, whatever its state. It returns the record and
// whether a new job was queued. A failed record is not retried.
func (g *Generator) Request(source string, s Settings, priority int) (Record, bool) {
	fp := Fingerprint(source, s)
	rec := &Record{
		Fingerprint: fp,
		Source:      source,
		OutputPath:  filepath.Join(g.dir, outputName(fp, s)),
		Settings:    s,
		Priority:    priority,
		Status:      StatusPending,
		CreatedAt:   g.now(),
	}
	out := *rec

	// The record goes in before the job so a concurrent duplicate sees it.
	if !g.registry.insertIfAbsent(rec) {
		metrics.ProxyRequestsTotal.WithLabelValues("duplicate").Inc()
		existing, _ := g.registry.get(fp)
		log.Debug("Proxy %s for %s already %s", fp, source, existing.Status)
		return existing, false
	}

	g.queue.push(&Request{Source: source, Settings: s, Priority: priority, fingerprint: fp, record: rec})
	metrics.ProxyRequestsTotal.WithLabelValues("queued").Inc()
	metrics.ProxyQueueDepth.Set(float64(g.queue.len()))
	log.Info("Queued proxy %s for %s (%dx%d@%d %s, priority %d)",
		fp, source, s.Width, s.Height, s.roundedFPS(), s.Quality, priority)

	return out, true
}

// Info returns the record for source at settings.
func (g *Generator) Info(source string, s Settings) (Record, bool) {
	return g.registry.get(Fingerprint(source, s))
}

// IsReady reports whether the proxy finished successfully. It does not
// look at the disk; use Path for that.
func (g *Generator) IsReady(source string, s Settings) bool {
	rec, ok := g.Info(source, s)
	return ok && rec.Ready
}

// Path returns the proxy file for source at settings if it is ready and
// still present on disk.
func (g *Generator) Path(source string, s Settings) (string, bool) {
	rec, ok := g.Info(source, s)
	if !ok || !rec.Ready {
		return "", false
	}
	if _, ok := filesystem.NonEmptyFile(rec.OutputPath, g.retry); !ok {
		log.Warn("Proxy %s is marked ready but %s is missing", rec.Fingerprint, rec.OutputPath)
		return "", false
	}
	return rec.OutputPath, true
}

// Cleanup removes every record created more than maxAge ago, deleting its
// file first. A file that cannot be deleted does not keep the record. It
// returns the number of records removed.
func (g *Generator) Cleanup(maxAge time.Duration) int {
	now := g.now()
	cutoff := now.Add(-maxAge)

	removed := 0
	for _, rec := range g.registry.olderThan(cutoff) {
		if g.watcher != nil {
			g.watcher.expect(rec.OutputPath)
		}
		if err := filesystem.RemoveWithRetry(rec.OutputPath, g.retry); err != nil {
			log.Warn("Failed to remove proxy file %s: %v", rec.OutputPath, err)
		}
		if g.registry.remove(rec.Fingerprint, rec.CreatedAt) {
			removed++
		}
	}

	if removed > 0 {
		metrics.ProxyCleanupRemoved.Add(float64(removed))
		log.Info("Cleaned up %d proxies older than %v", removed, maxAge)
	}
	if g.after != nil {
		g.after(removed, now)
	}
	return removed
}

// StartCleanupLoop runs Cleanup(maxAge) every interval until Close.
func (g *Generator) StartCleanupLoop(interval, maxAge time.Duration) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.Cleanup(maxAge)
			case <-g.stop:
				return
			}
		}
	}()
}

// Stats returns the number of records, how many are ready, and the bytes
// the ready ones occupy.
func (g *Generator) Stats() (total, ready int, bytes int64) {
	return g.registry.stats()
}

// Snapshot returns copies of all records, oldest first.
func (g *Generator) Snapshot() []Record {
	return g.registry.snapshot()
}

// QueueLen is the number of jobs waiting for the worker.
func (g *Generator) QueueLen() int {
	return g.queue.len()
}

// Close stops the worker and the cleanup loop and releases the directory
// lock. A job that is already encoding runs to completion first.
func (g *Generator) Close() error {
	g.closeOnce.Do(func() {
		close(g.stop)
		g.wg.Wait()

		var errs []error
		if g.watcher != nil {
			errs = append(errs, g.watcher.close())
		}
		errs = append(errs, g.lock.Unlock())
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}
