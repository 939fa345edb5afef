package hook

import (
	"context"
	"log/slog"
	"time"

	"github.com/toimcz/hail/job"
)

// Named entry types pair a hook implementation with the hook name captured
// at registration time. This avoids type-asserting back to Hook inside the
// emit methods.
type jobEnqueuedEntry struct {
	name string
	hook JobEnqueued
}

type jobStartedEntry struct {
	name string
	hook JobStarted
}

type jobCompletedEntry struct {
	name string
	hook JobCompleted
}

type jobRetryingEntry struct {
	name string
	hook JobRetrying
}

type jobFailedEntry struct {
	name string
	hook JobFailed
}

type jobDLQEntry struct {
	name string
	hook JobDLQ
}

type tokenIssuedEntry struct {
	name string
	hook TokenIssued
}

type tokenRedeemedEntry struct {
	name string
	hook TokenRedeemed
}

type deliveryGapEntry struct {
	name string
	hook DeliveryGap
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events to them.
// It type-caches hooks at registration time so emit calls iterate only
// over hooks that implement the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	jobEnqueued   []jobEnqueuedEntry
	jobStarted    []jobStartedEntry
	jobCompleted  []jobCompletedEntry
	jobRetrying   []jobRetryingEntry
	jobFailed     []jobFailedEntry
	jobDLQ        []jobDLQEntry
	tokenIssued   []tokenIssuedEntry
	tokenRedeemed []tokenRedeemedEntry
	deliveryGap   []deliveryGapEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(JobEnqueued); ok {
		r.jobEnqueued = append(r.jobEnqueued, jobEnqueuedEntry{name, e})
	}
	if e, ok := h.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, jobStartedEntry{name, e})
	}
	if e, ok := h.(JobCompleted); ok {
		r.jobCompleted = append(r.jobCompleted, jobCompletedEntry{name, e})
	}
	if e, ok := h.(JobRetrying); ok {
		r.jobRetrying = append(r.jobRetrying, jobRetryingEntry{name, e})
	}
	if e, ok := h.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, jobFailedEntry{name, e})
	}
	if e, ok := h.(JobDLQ); ok {
		r.jobDLQ = append(r.jobDLQ, jobDLQEntry{name, e})
	}
	if e, ok := h.(TokenIssued); ok {
		r.tokenIssued = append(r.tokenIssued, tokenIssuedEntry{name, e})
	}
	if e, ok := h.(TokenRedeemed); ok {
		r.tokenRedeemed = append(r.tokenRedeemed, tokenRedeemedEntry{name, e})
	}
	if e, ok := h.(DeliveryGap); ok {
		r.deliveryGap = append(r.deliveryGap, deliveryGapEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobEnqueued notifies all hooks that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all hooks that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobCompleted notifies all hooks that implement JobCompleted.
func (r *Registry) EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) {
	for _, e := range r.jobCompleted {
		if err := e.hook.OnJobCompleted(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobCompleted", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all hooks that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) {
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobFailed notifies all hooks that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobDLQ notifies all hooks that implement JobDLQ.
func (r *Registry) EmitJobDLQ(ctx context.Context, j *job.Job, jobErr error) {
	for _, e := range r.jobDLQ {
		if err := e.hook.OnJobDLQ(ctx, j, jobErr); err != nil {
			r.logHookError("OnJobDLQ", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Token event emitters
// ──────────────────────────────────────────────────

// EmitTokenIssued notifies all hooks that implement TokenIssued.
func (r *Registry) EmitTokenIssued(ctx context.Context, subjectID string, expiresAt time.Time) {
	for _, e := range r.tokenIssued {
		if err := e.hook.OnTokenIssued(ctx, subjectID, expiresAt); err != nil {
			r.logHookError("OnTokenIssued", e.name, err)
		}
	}
}

// EmitTokenRedeemed notifies all hooks that implement TokenRedeemed.
func (r *Registry) EmitTokenRedeemed(ctx context.Context, subjectID string) {
	for _, e := range r.tokenRedeemed {
		if err := e.hook.OnTokenRedeemed(ctx, subjectID); err != nil {
			r.logHookError("OnTokenRedeemed", e.name, err)
		}
	}
}

// EmitDeliveryGap notifies all hooks that implement DeliveryGap.
func (r *Registry) EmitDeliveryGap(ctx context.Context, subjectID string, gapErr error) {
	for _, e := range r.deliveryGap {
		if err := e.hook.OnDeliveryGap(ctx, subjectID, gapErr); err != nil {
			r.logHookError("OnDeliveryGap", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError records a hook failure without interrupting the emit loop.
// A misbehaving hook must not affect job or token processing.
func (r *Registry) logHookError(event, name string, err error) {
	r.logger.Error("hook failed",
		slog.String("event", event),
		slog.String("hook", name),
		slog.String("error", err.Error()),
	)
}
