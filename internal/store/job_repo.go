package store

import (
	"time"
)

// JobStatus is where a job is in its run. Queued and running jobs are live;
// the rest are terminal.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// JobMaxAttempts bounds how often a handler is retried.
const JobMaxAttempts = 3

// Job is a stored unit of deferred work. Barkeep uses it for event
// reminders, keyed "reminder:<contact request id>".
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	RunAt       time.Time  `json:"run_at"`
	PayloadJSON string     `json:"payload_json"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error"`
	LockedAt    *time.Time `json:"locked_at"`
	DedupeKey   string     `json:"dedupe_key"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PendingJob is a job that has not been written yet.
type PendingJob struct {
	Kind        string
	RunAt       time.Time
	PayloadJSON string
	DedupeKey   string
}

// JobRepo persists the jobs JobRunner executes.
type JobRepo interface {
	// EnqueueJob stores a queued job and returns its ID. A live job with the
	// same non-empty dedupeKey is returned instead of a second row.
	EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error)

	// ClaimDueJobs moves up to limit jobs due by now to running, oldest
	// run_at first.
	ClaimDueJobs(now time.Time, limit int) ([]Job, error)

	CompleteJob(id string) error

	// FailJob records errMsg and queues the job again at nextRunAt. The last
	// allowed attempt leaves it failed.
	FailJob(id string, errMsg string, nextRunAt time.Time) error

	CancelJob(id string) error

	// RequeueStaleRunningJobs hands jobs locked before staleBefore back to
	// the queue. Called at startup after a crash.
	RequeueStaleRunningJobs(staleBefore time.Time) (int, error)

	// GetJob returns nil, nil for an unknown id.
	GetJob(id string) (*Job, error)
}
