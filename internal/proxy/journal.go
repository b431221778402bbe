package proxy

import (
	"context"
	"time"
)

// Outcome is the durable summary of one finished proxy job.
type Outcome struct {
	JobID       string    `json:"jobId"`
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source"`
	OutputPath  string    `json:"outputPath"`
	Settings    Settings  `json:"settings"`
	Status      Status    `json:"status"`
	Size        int64     `json:"size"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
}

// Journal persists job outcomes. Failures to record are logged and never
// affect the record itself.
type Journal interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}
