package redis

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
)

// jobRecord is the msgpack wire form of a job. IDs travel as strings
// because msgpack does not consult encoding.TextMarshaler.
type jobRecord struct {
	ID          string        `msgpack:"id"`
	Family      string        `msgpack:"family"`
	Name        string        `msgpack:"name"`
	Payload     []byte        `msgpack:"payload"`
	State       string        `msgpack:"state"`
	Attempt     int           `msgpack:"attempt"`
	MaxAttempts int           `msgpack:"max_attempts"`
	LastError   string        `msgpack:"last_error,omitempty"`
	RunAt       time.Time     `msgpack:"run_at"`
	Timeout     time.Duration `msgpack:"timeout,omitempty"`
	CreatedAt   time.Time     `msgpack:"created_at"`
	UpdatedAt   time.Time     `msgpack:"updated_at"`
}

func encodeJob(j *job.Job) ([]byte, error) {
	rec := jobRecord{
		ID:          j.ID.String(),
		Family:      j.Family,
		Name:        j.Name,
		Payload:     j.Payload,
		State:       string(j.State),
		Attempt:     j.Attempt,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
		RunAt:       j.RunAt,
		Timeout:     j.Timeout,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("redis: encode job %s: %w", j.ID, err)
	}
	return data, nil
}

func decodeJob(data []byte) (*job.Job, error) {
	var rec jobRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode job: %w", err)
	}

	jobID, err := id.ParseJobID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("redis: decode job: %w", err)
	}

	j := &job.Job{
		ID:          jobID,
		Family:      rec.Family,
		Name:        rec.Name,
		Payload:     rec.Payload,
		State:       job.State(rec.State),
		Attempt:     rec.Attempt,
		MaxAttempts: rec.MaxAttempts,
		LastError:   rec.LastError,
		RunAt:       rec.RunAt,
		Timeout:     rec.Timeout,
	}
	j.CreatedAt = rec.CreatedAt
	j.UpdatedAt = rec.UpdatedAt
	return j, nil
}

// dlqRecord is the msgpack wire form of a dead letter entry.
type dlqRecord struct {
	ID          string     `msgpack:"id"`
	JobID       string     `msgpack:"job_id"`
	Family      string     `msgpack:"family"`
	JobName     string     `msgpack:"job_name"`
	Payload     []byte     `msgpack:"payload"`
	Error       string     `msgpack:"error"`
	Attempts    int        `msgpack:"attempts"`
	MaxAttempts int        `msgpack:"max_attempts"`
	FailedAt    time.Time  `msgpack:"failed_at"`
	ReplayedAt  *time.Time `msgpack:"replayed_at,omitempty"`
	CreatedAt   time.Time  `msgpack:"created_at"`
}

func encodeEntry(e *dlq.Entry) ([]byte, error) {
	rec := dlqRecord{
		ID:          e.ID.String(),
		JobID:       e.JobID.String(),
		Family:      e.Family,
		JobName:     e.JobName,
		Payload:     e.Payload,
		Error:       e.Error,
		Attempts:    e.Attempts,
		MaxAttempts: e.MaxAttempts,
		FailedAt:    e.FailedAt,
		ReplayedAt:  e.ReplayedAt,
		CreatedAt:   e.CreatedAt,
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("redis: encode dlq entry %s: %w", e.ID, err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*dlq.Entry, error) {
	var rec dlqRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode dlq entry: %w", err)
	}

	entryID, err := id.ParseDLQID(rec.ID)
	if err != nil {
		return nil, fmt.Errorf("redis: decode dlq entry: %w", err)
	}
	jobID, err := id.ParseJobID(rec.JobID)
	if err != nil {
		return nil, fmt.Errorf("redis: decode dlq entry: %w", err)
	}

	return &dlq.Entry{
		ID:          entryID,
		JobID:       jobID,
		Family:      rec.Family,
		JobName:     rec.JobName,
		Payload:     rec.Payload,
		Error:       rec.Error,
		Attempts:    rec.Attempts,
		MaxAttempts: rec.MaxAttempts,
		FailedAt:    rec.FailedAt,
		ReplayedAt:  rec.ReplayedAt,
		CreatedAt:   rec.CreatedAt,
	}, nil
}
