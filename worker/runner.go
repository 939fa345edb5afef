package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/hook"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/queue"
)

// Runner is the singleton consuming loop for one job family. Exactly one
// Runner per family exists process-wide (enforced by the engine's
// first-call-wins registration), so no two goroutines race on the same
// queue. The loop pops, executes, and routes outcomes through the Executor.
type Runner struct {
	family   *job.Family
	queue    queue.Queue
	executor *Executor
	hooks    *hook.Registry
	logger   *slog.Logger
	workerID id.WorkerID

	// limiter optionally caps sustained dequeues per second.
	limiter *rate.Limiter

	// errorBackoff is the pause after an infrastructure error on pop,
	// so a dead backend is not hammered in a tight loop.
	errorBackoff time.Duration

	stopCh chan struct{}
	done   chan struct{}
	mu     sync.Mutex
	state  runnerState
}

type runnerState int

const (
	runnerIdle runnerState = iota
	runnerRunning
	runnerStopped
)

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRateLimit caps the sustained number of dequeues per second for the
// family, with the given burst size.
func WithRateLimit(perSecond float64, burst int) RunnerOption {
	return func(r *Runner) {
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithErrorBackoff sets the pause after a failed queue pop.
func WithErrorBackoff(d time.Duration) RunnerOption {
	return func(r *Runner) { r.errorBackoff = d }
}

// NewRunner creates the worker loop for a family. It does not start it.
func NewRunner(
	fam *job.Family,
	q queue.Queue,
	executor *Executor,
	hooks *hook.Registry,
	logger *slog.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		family:       fam,
		queue:        q,
		executor:     executor,
		hooks:        hooks,
		logger:       logger,
		workerID:     id.NewWorkerID(),
		errorBackoff: time.Second,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WorkerID returns the runner's unique worker identifier.
func (r *Runner) WorkerID() id.WorkerID { return r.workerID }

// Family returns the family this runner consumes.
func (r *Runner) Family() *job.Family { return r.family }

// Start launches the consuming goroutine. It returns immediately and is
// a no-op if the runner is already running or stopped.
func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != runnerIdle {
		return
	}
	r.state = runnerRunning

	r.logger.Info("family worker starting",
		slog.String("family", r.family.Name),
		slog.String("worker_id", r.workerID.String()),
	)

	go r.loop()
}

// Stop signals the loop to exit and waits for the in-flight job (if any)
// to finish, bounded by the context deadline.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	switch r.state {
	case runnerRunning:
		r.state = runnerStopped
		close(r.stopCh)
	case runnerIdle:
		r.state = runnerStopped
		close(r.stopCh)
		close(r.done)
	case runnerStopped:
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) loop() {
	defer close(r.done)

	// popCtx is cancelled on Stop so a blocking pop wakes promptly.
	popCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	for {
		select {
		case <-r.stopCh:
			r.logger.Info("family worker stopped",
				slog.String("family", r.family.Name),
				slog.String("worker_id", r.workerID.String()),
			)
			return
		default:
		}

		// Rate-limit before popping so a stop during the wait loses
		// nothing.
		if r.limiter != nil {
			if err := r.limiter.Wait(popCtx); err != nil {
				continue
			}
		}

		j, err := r.queue.Pop(popCtx, r.family.Name)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, hail.ErrQueueClosed) {
				continue
			}
			r.logger.Error("queue pop failed",
				slog.String("family", r.family.Name),
				slog.String("error", err.Error()),
			)
			r.sleep()
			continue
		}
		if j == nil {
			// Pop timed out with nothing to deliver.
			continue
		}

		j.State = job.StateRunning
		r.hooks.EmitJobStarted(popCtx, j)

		// Execution is deliberately not bound to popCtx: a stop request
		// drains the in-flight job instead of cancelling it. Per-job
		// deadlines come from the Timeout middleware.
		if execErr := r.executor.Execute(context.Background(), j); execErr != nil {
			r.logger.Debug("job execution failed",
				slog.String("family", r.family.Name),
				slog.String("job_id", j.ID.String()),
				slog.String("error", execErr.Error()),
			)
		}
	}
}

func (r *Runner) sleep() {
	select {
	case <-time.After(r.errorBackoff):
	case <-r.stopCh:
	}
}
