// Package dlq implements the terminal failed state for jobs that exhausted
// their retry budget: the entry model, the store contract, a service for
// pushing and replaying entries, and a janitor that purges aged entries on
// a cron schedule.
package dlq

import (
	"context"
	"time"

	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/queue"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store Store
	queue queue.Queue
}

// NewService creates a DLQ service. The queue is used by Replay to
// re-enqueue entries; pass nil if replay is not needed.
func NewService(store Store, q queue.Queue) *Service {
	return &Service{store: store, queue: q}
}

// Push builds a DLQ Entry from a terminally failed job and persists it.
// The error string is captured from the final handler error.
func (s *Service) Push(ctx context.Context, j *job.Job, jobErr error) error {
	now := time.Now().UTC()
	entry := &Entry{
		ID:          id.NewDLQID(),
		JobID:       j.ID,
		Family:      j.Family,
		JobName:     j.Name,
		Payload:     j.Payload,
		Error:       jobErr.Error(),
		Attempts:    j.Attempt,
		MaxAttempts: j.MaxAttempts,
		FailedAt:    now,
		CreatedAt:   now,
	}
	return s.store.PushDLQ(ctx, entry)
}

// Replay re-enqueues the entry's job as a fresh attempt sequence and marks
// the entry replayed. The replayed job keeps its payload and name but gets
// a new ID so the original failure record stays intact.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*job.Job, error) {
	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Family:      entry.Family,
		Name:        entry.JobName,
		Payload:     entry.Payload,
		State:       job.StatePending,
		MaxAttempts: entry.MaxAttempts,
		RunAt:       now,
	}
	j.Touch(now)

	if err := s.queue.Push(ctx, j); err != nil {
		return nil, err
	}
	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		return nil, err
	}
	return j, nil
}

// Store returns the underlying DLQ store for direct access to List, Get,
// Purge, and Count operations.
func (s *Service) Store() Store {
	return s.store
}
