package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"media-proxy/internal/proxy"
)

// DefaultHistoryLimit caps History when the caller passes no limit.
const DefaultHistoryLimit = 100

// RecordOutcome stores the outcome of a finished proxy job. A second
// outcome with the same job id replaces the first.
func (d *Database) RecordOutcome(ctx context.Context, o proxy.Outcome) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_outcome", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		err = ErrClosed
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	duration := o.FinishedAt.Sub(o.StartedAt).Milliseconds()
	if duration < 0 || o.StartedAt.IsZero() {
		duration = 0
	}

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO proxy_jobs (job_id, fingerprint, source, output_path, width, height, frame_rate,
		quality, status, size, error, started_at, finished_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		status = excluded.status,
		size = excluded.size,
		error = excluded.error,
		finished_at = excluded.finished_at,
		duration_ms = excluded.duration_ms
	`,
		o.JobID,
		o.Fingerprint,
		o.Source,
		o.OutputPath,
		o.Settings.Width,
		o.Settings.Height,
		o.Settings.FrameRate,
		o.Settings.Quality.String(),
		string(o.Status),
		o.Size,
		o.Error,
		toMillis(o.StartedAt),
		toMillis(o.FinishedAt),
		duration,
	)
	if err != nil {
		err = fmt.Errorf("failed to record outcome of job %s: %w", o.JobID, err)
	}
	return err
}

// History returns up to limit outcomes, newest first. An empty source
// returns outcomes for every source.
func (d *Database) History(ctx context.Context, source string, limit int) ([]proxy.Outcome, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("history", start, err) }()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		err = ErrClosed
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var sb strings.Builder
	sb.WriteString(`
	SELECT job_id, fingerprint, source, output_path, width, height, frame_rate,
		quality, status, size, error, started_at, finished_at
	FROM proxy_jobs`)
	args := make([]interface{}, 0, 2)
	if source != "" {
		sb.WriteString(" WHERE source = ?")
		args = append(args, source)
	}
	sb.WriteString(" ORDER BY finished_at DESC, job_id LIMIT ?")
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	outcomes := make([]proxy.Outcome, 0)
	for rows.Next() {
		var (
			o                   proxy.Outcome
			quality, status     string
			startedMs, finished int64
		)
		if err = rows.Scan(
			&o.JobID, &o.Fingerprint, &o.Source, &o.OutputPath,
			&o.Settings.Width, &o.Settings.Height, &o.Settings.FrameRate,
			&quality, &status, &o.Size, &o.Error, &startedMs, &finished,
		); err != nil {
			return nil, err
		}
		if o.Settings.Quality, err = proxy.ParseQuality(quality); err != nil {
			return nil, fmt.Errorf("job %s: %w", o.JobID, err)
		}
		o.Status = proxy.Status(status)
		o.StartedAt = fromMillis(startedMs)
		o.FinishedAt = fromMillis(finished)
		outcomes = append(outcomes, o)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return outcomes, nil
}

// Prune deletes outcomes that finished before the cutoff and returns how
// many were removed.
func (d *Database) Prune(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		err = ErrClosed
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, "DELETE FROM proxy_jobs WHERE finished_at < ?", toMillis(before))
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info("Pruned %d job outcomes finished before %s", n, before.Format(time.RFC3339))
	}
	return n, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
