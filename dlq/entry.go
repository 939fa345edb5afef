package dlq

import (
	"time"

	"github.com/toimcz/hail/id"
)

// Entry represents a job that has exhausted its attempt budget and been
// moved to the dead letter queue for inspection or replay. Entries are
// never silently dropped; the Janitor purges them only after a configured
// retention period.
type Entry struct {
	ID          id.DLQID   `json:"id"`
	JobID       id.JobID   `json:"job_id"`
	Family      string     `json:"family"`
	JobName     string     `json:"job_name"`
	Payload     []byte     `json:"payload"`
	Error       string     `json:"error"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	FailedAt    time.Time  `json:"failed_at"`
	ReplayedAt  *time.Time `json:"replayed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
