// Package queue defines the per-family job queue contract. Each family owns
// one logical FIFO queue shared by all producers and consumed by the
// family's single worker loop.
//
// Delivery is FIFO-attempted, at-least-once: a popped job that is never
// completed (worker crash) may be re-delivered by a durable backend, and
// retries re-enter the queue behind newer jobs once their delay lapses.
package queue

import (
	"context"
	"time"

	"github.com/toimcz/hail/job"
)

// Queue is the family queue contract implemented by backends
// (store/memory, store/redis).
type Queue interface {
	// Push appends the job to its family's queue for immediate delivery.
	Push(ctx context.Context, j *job.Job) error

	// PushDelayed appends the job to its family's queue, holding it back
	// from delivery until the delay lapses. Used for retry backoff.
	PushDelayed(ctx context.Context, j *job.Job, delay time.Duration) error

	// Pop blocks until a job is available on the family's queue, the
	// context is done, or the backend's pop timeout lapses. A nil job
	// with a nil error means the pop timed out with nothing to deliver;
	// callers should loop. Returns hail.ErrQueueClosed after Close.
	Pop(ctx context.Context, family string) (*job.Job, error)
}
