package proxy

import "time"

// Status is the lifecycle state of a proxy record.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Terminal reports whether the worker is done with a record in this state.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Record tracks one proxy from request to completion. Values handed out by
// the Generator are copies.
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	JobID       string    `json:"jobId,omitempty"`
	Source      string    `json:"source"`
	OutputPath  string    `json:"outputPath"`
	Settings    Settings  `json:"settings"`
	Priority    int       `json:"priority"`
	Status      Status    `json:"status"`
	Progress    float64   `json:"progress"`
	Ready       bool      `json:"ready"`
	Size        int64     `json:"size"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	FinishedAt  time.Time `json:"finishedAt,omitzero"`
}

func (r *Record) markRunning(jobID string, now time.Time) {
	r.JobID = jobID
	r.Status = StatusRunning
	r.StartedAt = now
	r.Progress = 0
	r.Error = ""
}

func (r *Record) markReady(size int64, now time.Time) {
	r.Status = StatusReady
	r.Ready = true
	r.Progress = 1
	r.Size = size
	r.Error = ""
	r.FinishedAt = now
}

func (r *Record) markFailed(reason string, now time.Time) {
	r.Status = StatusFailed
	r.Ready = false
	r.Progress = 0
	r.Size = 0
	r.Error = reason
	r.FinishedAt = now
}
