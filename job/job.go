package job

import (
	"time"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StatePending means the job is waiting in its family's queue.
	StatePending State = "pending"
	// StateRunning means the family worker is executing the job.
	StateRunning State = "running"
	// StateCompleted means the job finished successfully.
	StateCompleted State = "completed"
	// StateRetrying means the job failed and is scheduled for another attempt.
	StateRetrying State = "retrying"
	// StateFailed means the job exhausted its attempts and was dead-lettered.
	StateFailed State = "failed"
)

// Job is a unit of deferred work belonging to a named family. The payload
// is opaque to the dispatch machinery and immutable once enqueued; only the
// attempt bookkeeping changes across retries.
type Job struct {
	hail.Entity

	ID          id.JobID      `json:"id"`
	Family      string        `json:"family"`
	Name        string        `json:"name"`
	Payload     []byte        `json:"payload"`
	State       State         `json:"state"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	LastError   string        `json:"last_error,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.State == StateCompleted || j.State == StateFailed
}
