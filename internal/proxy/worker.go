package proxy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"media-proxy/internal/filesystem"
	"media-proxy/internal/metrics"
)

const (
	partSuffix     = ".part"
	journalTimeout = 5 * time.Second
)

var (
	errTranscoderUnavailable = errors.New("transcoder unavailable")
	errEmptyOutput           = errors.New("transcoder produced no output")
	errRecordRemoved         = errors.New("record removed during encode")
)

// run is the worker loop. The stop channel is checked between jobs only,
// so a running encode is never interrupted.
func (g *Generator) run() {
	defer g.wg.Done()
	log.Info("Proxy worker started (dir=%s, poll=%v)", g.dir, g.poll)

	for {
		select {
		case <-g.stop:
			log.Info("Proxy worker stopped")
			return
		default:
		}

		req := g.queue.pop()
		if req == nil {
			select {
			case <-g.stop:
				log.Info("Proxy worker stopped")
				return
			case <-time.After(g.poll):
			}
			continue
		}
		metrics.ProxyQueueDepth.Set(float64(g.queue.len()))

		g.process(req)
	}
}

func (g *Generator) process(req *Request) {
	jobID := uuid.NewString()
	startedAt := g.now()
	claimed := false
	rec, _ := g.registry.update(req.fingerprint, func(r *Record) {
		// A record cleaned up and requested again while this entry sat in
		// the queue has its own entry behind this one.
		if r != req.record || r.Status != StatusPending {
			return
		}
		claimed = true
		r.markRunning(jobID, startedAt)
	})
	if !claimed {
		log.Debug("Skipping stale queue entry for %s", req.Source)
		return
	}

	metrics.ProxyJobsInProgress.Inc()
	defer metrics.ProxyJobsInProgress.Dec()
	timer := time.Now()

	log.Info("Generating proxy %s for %s (job %s)", rec.Fingerprint, rec.Source, jobID)
	size, jobErr := g.execute(rec)

	finishedAt := g.now()
	owned := false
	final, _ := g.registry.update(rec.Fingerprint, func(r *Record) {
		if r.JobID != jobID {
			return
		}
		owned = true
		if jobErr != nil {
			r.markFailed(jobErr.Error(), finishedAt)
		} else {
			r.markReady(size, finishedAt)
		}
	})

	if !owned && jobErr == nil {
		jobErr = errRecordRemoved
		size = 0
	}

	outcome := "ready"
	switch {
	case errors.Is(jobErr, errTranscoderUnavailable):
		outcome = "unavailable"
	case jobErr != nil:
		outcome = "failed"
	}
	metrics.ProxyJobsTotal.WithLabelValues(outcome).Inc()
	metrics.ProxyJobDuration.Observe(time.Since(timer).Seconds())

	if !owned {
		// Cleaned up while encoding; the file has no record to belong to.
		if errors.Is(jobErr, errRecordRemoved) {
			g.discard(rec.OutputPath)
		}
		log.Info("Proxy %s finished after its record was removed", rec.Fingerprint)
	} else if jobErr != nil {
		log.Error("Proxy %s for %s failed: %v", rec.Fingerprint, rec.Source, jobErr)
	} else {
		log.Info("Proxy %s ready: %s (%d bytes, %v)", final.Fingerprint, final.OutputPath,
			final.Size, time.Since(timer).Round(time.Millisecond))
	}

	g.journalOutcome(Outcome{
		JobID:       jobID,
		Fingerprint: rec.Fingerprint,
		Source:      rec.Source,
		OutputPath:  rec.OutputPath,
		Settings:    rec.Settings,
		Status:      statusOf(jobErr),
		Size:        size,
		Error:       errString(jobErr),
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	})
}

// execute encodes rec into a .part file and renames it into place. Only a
// clean exit with a non-empty file counts as success.
func (g *Generator) execute(rec Record) (int64, error) {
	ctx := context.Background()

	if !g.tc.available(ctx) {
		return 0, errTranscoderUnavailable
	}

	if err := os.MkdirAll(filepath.Dir(rec.OutputPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	part := rec.OutputPath + partSuffix
	tail, err := g.tc.run(ctx, rec.Source, part, rec.Settings, func(p float64) {
		g.registry.setProgress(rec.Fingerprint, p)
	})
	if err != nil {
		g.discard(part)
		if tail != "" {
			log.Warn("ffmpeg output for %s:\n%s", rec.Source, tail)
		}
		return 0, err
	}

	size, ok := filesystem.NonEmptyFile(part, g.retry)
	if !ok {
		g.discard(part)
		return 0, errEmptyOutput
	}

	if err := filesystem.RenameWithRetry(part, rec.OutputPath, g.retry); err != nil {
		g.discard(part)
		return 0, fmt.Errorf("failed to publish proxy: %w", err)
	}
	return size, nil
}

func (g *Generator) discard(path string) {
	if err := filesystem.RemoveWithRetry(path, g.retry); err != nil {
		log.Warn("Failed to remove %s: %v", path, err)
	}
}

func (g *Generator) journalOutcome(o Outcome) {
	if g.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := g.journal.RecordOutcome(ctx, o); err != nil {
		metrics.ProxyJournalErrors.Inc()
		log.Warn("Failed to journal job %s: %v", o.JobID, err)
	}
}

func statusOf(err error) Status {
	if err != nil {
		return StatusFailed
	}
	return StatusReady
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
