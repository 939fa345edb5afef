// Package hook defines lifecycle hooks for the Hail core.
//
// Hooks are notified of lifecycle events and can react to them: recording
// metrics, emitting alerts, writing audit logs. Each lifecycle event is a
// separate interface so hooks opt in only to the events they care about.
// Asynchronous failures (retry exhaustion, delivery gaps) surface ONLY
// through hooks and logs; they never propagate back into a request path.
//
// # Job lifecycle
//
//   - [JobEnqueued] job was accepted into its family's queue
//   - [JobStarted] the family worker began executing the job
//   - [JobCompleted] job finished successfully
//   - [JobRetrying] job failed but will be retried
//   - [JobFailed] job failed with no attempts remaining
//   - [JobDLQ] job was moved to the dead letter queue
//
// # Token lifecycle
//
//   - [TokenIssued] a login token was written to the cache
//   - [TokenRedeemed] a login token was atomically consumed
//   - [DeliveryGap] a token was issued but its notification could not
//     be enqueued; the token is live with no email on the way
//
// # Other
//
//   - [Shutdown] the engine is shutting down gracefully
package hook

import (
	"context"
	"time"

	"github.com/toimcz/hail/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when the family worker begins executing a job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobFailed is called when a job fails terminally (no more attempts).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobDLQ is called when a job is moved to the dead letter queue.
type JobDLQ interface {
	OnJobDLQ(ctx context.Context, j *job.Job, err error) error
}

// TokenIssued is called after a login token is written to the cache.
// The token secret is NOT passed to hooks; only the subject is.
type TokenIssued interface {
	OnTokenIssued(ctx context.Context, subjectID string, expiresAt time.Time) error
}

// TokenRedeemed is called after a login token is atomically consumed.
type TokenRedeemed interface {
	OnTokenRedeemed(ctx context.Context, subjectID string) error
}

// DeliveryGap is called when a token was issued but its notification job
// could not be enqueued. The token is redeemable; no email is on the way.
type DeliveryGap interface {
	OnDeliveryGap(ctx context.Context, subjectID string, err error) error
}

// Shutdown is called when the engine shuts down gracefully.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
