// Package worker provides the job execution engine: an Executor that runs
// jobs through middleware and the family handler, and a Runner that owns
// the single consuming loop for one job family.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/backoff"
	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/hook"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/middleware"
	"github.com/toimcz/hail/queue"
)

// Executor runs a single job through middleware and the family handler,
// then routes the outcome: completion, retry with backoff, or dead-letter.
type Executor struct {
	registry   *job.Registry
	queue      queue.Queue
	dlqService *dlq.Service
	hooks      *hook.Registry
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor with the given dependencies.
func NewExecutor(
	registry *job.Registry,
	q queue.Queue,
	dlqService *dlq.Service,
	hooks *hook.Registry,
	bo backoff.Strategy,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Executor {
	return &Executor{
		registry:   registry,
		queue:      q,
		dlqService: dlqService,
		hooks:      hooks,
		backoff:    bo,
		mw:         middleware.Chain(mws...),
		logger:     logger,
	}
}

// Execute runs a job through the middleware chain and family handler.
// On success: marks completed, emits JobCompleted.
// On failure with attempts remaining: re-enqueues with backoff, emits JobRetrying.
// On failure with attempts exhausted: dead-letters, emits JobFailed + JobDLQ.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	fam, ok := e.registry.Get(j.Family)
	if !ok {
		return fmt.Errorf("execute job %q: %w", j.Family, hail.ErrFamilyNotRegistered)
	}

	start := time.Now()

	// The terminal handler dispatches on the job name inside the family.
	terminal := func(ctx context.Context) error {
		return fam.Handle(ctx, j.Name, j.Payload)
	}

	err := e.mw(ctx, j, terminal)
	elapsed := time.Since(start)

	now := time.Now().UTC()
	j.Touch(now)

	if err != nil {
		return e.handleFailure(ctx, j, err, now)
	}

	return e.handleSuccess(ctx, j, now, elapsed)
}

// handleSuccess marks the job as completed and emits the lifecycle event.
func (e *Executor) handleSuccess(ctx context.Context, j *job.Job, now time.Time, elapsed time.Duration) error {
	j.State = job.StateCompleted
	j.CompletedAt = &now

	e.hooks.EmitJobCompleted(ctx, j, elapsed)
	return nil
}

// handleFailure counts the attempt and either schedules a retry or
// dead-letters the job.
func (e *Executor) handleFailure(ctx context.Context, j *job.Job, handlerErr error, now time.Time) error {
	j.Attempt++
	j.LastError = handlerErr.Error()

	if j.Attempt < j.MaxAttempts {
		return e.scheduleRetry(ctx, j, now, handlerErr)
	}

	return e.sendToDLQ(ctx, j, handlerErr)
}

// scheduleRetry re-enqueues the job with a backoff delay.
func (e *Executor) scheduleRetry(ctx context.Context, j *job.Job, now time.Time, handlerErr error) error {
	delay := e.backoff.Delay(j.Attempt)
	nextRunAt := now.Add(delay)
	j.RunAt = nextRunAt
	j.State = job.StateRetrying

	if pushErr := e.queue.PushDelayed(ctx, j, delay); pushErr != nil {
		e.logger.Error("failed to re-enqueue job for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("error", pushErr.Error()),
		)
		return pushErr
	}

	e.hooks.EmitJobRetrying(ctx, j, j.Attempt, nextRunAt)

	e.logger.Info("job scheduled for retry",
		slog.String("family", j.Family),
		slog.String("job_name", j.Name),
		slog.String("job_id", j.ID.String()),
		slog.Int("attempt", j.Attempt),
		slog.Int("max_attempts", j.MaxAttempts),
		slog.Duration("delay", delay),
	)

	return fmt.Errorf("job %s attempt %d/%d: %w", j.Name, j.Attempt, j.MaxAttempts, handlerErr)
}

// sendToDLQ marks the job as failed, pushes it to the DLQ, and emits events.
// The job is never silently dropped: even if the DLQ push fails, the
// terminal failure is logged and surfaced through hooks.
func (e *Executor) sendToDLQ(ctx context.Context, j *job.Job, handlerErr error) error {
	j.State = job.StateFailed

	if e.dlqService != nil {
		if dlqErr := e.dlqService.Push(ctx, j, handlerErr); dlqErr != nil {
			e.logger.Error("failed to push job to DLQ",
				slog.String("job_id", j.ID.String()),
				slog.String("error", dlqErr.Error()),
			)
		}
	}

	e.hooks.EmitJobFailed(ctx, j, handlerErr)
	e.hooks.EmitJobDLQ(ctx, j, handlerErr)

	e.logger.Warn("job moved to DLQ after exhausting attempts",
		slog.String("family", j.Family),
		slog.String("job_name", j.Name),
		slog.String("job_id", j.ID.String()),
		slog.Int("attempts", j.Attempt),
		slog.String("error", handlerErr.Error()),
	)

	return handlerErr
}
