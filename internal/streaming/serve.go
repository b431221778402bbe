package streaming

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"media-proxy/internal/filesystem"
	"media-proxy/internal/logging"
)

var log = logging.For("streaming")

var (
	// ErrWriteTimeout means a chunk could not be written before its deadline,
	// or the whole transfer ran past Config.MaxDuration.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone means the request context ended mid-transfer.
	ErrClientGone = errors.New("client disconnected")
)

// Config bounds a single file transfer.
type Config struct {
	// WriteTimeout is the deadline for each chunk.
	WriteTimeout time.Duration
	// ChunkSize is the largest write handed to the connection at once.
	ChunkSize int
	// MaxDuration caps the whole transfer. Zero means no cap.
	MaxDuration time.Duration
}

// DefaultConfig suits proxy files served over a LAN.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    256 * 1024,
	}
}

// Result describes a finished transfer.
type Result struct {
	Bytes    int64
	Duration time.Duration
}

// ServeFile sends the file at path with range and conditional request
// support. Each chunk gets its own write deadline so a stalled client
// releases the connection instead of holding it until the server's
// WriteTimeout.
//
// Errors from opening the file are returned before anything is written, so
// callers can still answer with a status of their own. Later errors mean the
// response was cut short.
func ServeFile(w http.ResponseWriter, r *http.Request, path, contentType string, cfg Config) (Result, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Result{}, err
	}
	if !info.Mode().IsRegular() {
		return Result{}, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}

	dw := newDeadlineWriter(r.Context(), w, cfg)
	defer dw.clearDeadline()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(dw, r, filepath.Base(path), info.ModTime(), f)

	res := Result{Bytes: dw.written, Duration: time.Since(dw.start)}
	if dw.err != nil {
		log.Debug("Transfer of %s stopped after %d bytes: %v", filepath.Base(path), res.Bytes, dw.err)
	} else {
		log.Debug("Sent %s: %d bytes in %v", filepath.Base(path), res.Bytes, res.Duration)
	}
	return res, dw.err
}

// deadlineWriter splits writes into chunks and extends the connection's
// write deadline before each one. It remembers the first error because
// http.ServeContent does not report copy failures.
type deadlineWriter struct {
	http.ResponseWriter
	ctx       context.Context
	rc        *http.ResponseController
	cfg       Config
	start     time.Time
	written   int64
	err       error
	deadlines bool
}

func newDeadlineWriter(ctx context.Context, w http.ResponseWriter, cfg Config) *deadlineWriter {
	return &deadlineWriter{
		ResponseWriter: w,
		ctx:            ctx,
		rc:             http.NewResponseController(w),
		cfg:            cfg,
		start:          time.Now(),
		deadlines:      true,
	}
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}

	total := 0
	for len(p) > 0 {
		if d.ctx.Err() != nil {
			return total, d.fail(ErrClientGone)
		}
		if d.cfg.MaxDuration > 0 && time.Since(d.start) > d.cfg.MaxDuration {
			return total, d.fail(ErrWriteTimeout)
		}

		d.extendDeadline()
		n, err := d.ResponseWriter.Write(p[:min(len(p), d.cfg.ChunkSize)])
		total += n
		d.written += int64(n)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				err = ErrWriteTimeout
			}
			return total, d.fail(err)
		}
		p = p[n:]
	}
	return total, nil
}

func (d *deadlineWriter) Unwrap() http.ResponseWriter {
	return d.ResponseWriter
}

func (d *deadlineWriter) fail(err error) error {
	if d.err == nil {
		d.err = err
	}
	return err
}

func (d *deadlineWriter) extendDeadline() {
	if !d.deadlines {
		return
	}
	if err := d.rc.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout)); err != nil {
		// Recorders and writers that cannot reach the connection.
		d.deadlines = false
	}
}

// clearDeadline hands the connection back without a deadline for keep-alive.
func (d *deadlineWriter) clearDeadline() {
	if d.deadlines {
		_ = d.rc.SetWriteDeadline(time.Time{})
	}
}
