package models

import "time"

// JobStatus tracks a refresh job through its lifecycle.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// RefreshJob is the record kept for each health check pass started through the API or the scheduler.
type RefreshJob struct {
	ID         string       `json:"job_id"`
	Status     JobStatus    `json:"status"`
	Trigger    string       `json:"trigger"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Summary    *PassSummary `json:"summary,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// PassSummary counts per-item outcomes of one health check pass.
type PassSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	// Skipped counts items removed by another writer mid-pass.
	Skipped int `json:"skipped"`
}
