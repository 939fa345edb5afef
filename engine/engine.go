// Package engine wires the Hail subsystems into one facade: family
// registration with singleton workers, fire-and-forget enqueueing, token
// store construction, and graceful shutdown.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/backoff"
	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/hook"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/idem"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/kv"
	"github.com/toimcz/hail/middleware"
	"github.com/toimcz/hail/notify"
	"github.com/toimcz/hail/queue"
	"github.com/toimcz/hail/store/memory"
	"github.com/toimcz/hail/token"
	"github.com/toimcz/hail/worker"
)

// Engine composes the cache, queues, workers, DLQ, and hooks behind one
// surface. Producers call Enqueue from request paths; each registered
// family gets exactly one consuming worker loop process-wide.
type Engine struct {
	cfg    hail.Config
	logger *slog.Logger

	cache      kv.Cache
	queue      queue.Queue
	dlqService *dlq.Service
	registry   *job.Registry
	hooks      *hook.Registry
	executor   *worker.Executor
	gateway    notify.Gateway
	janitor    *dlq.Janitor

	// ownedStore is the default in-memory backend, closed on Stop. Nil
	// when the caller supplied its own cache and queue.
	ownedStore *memory.Store

	mu      sync.Mutex
	runners map[string]*worker.Runner
	started bool
	stopped bool
}

// New creates an Engine. Without WithCache/WithQueue/WithDLQStore it runs
// on a single in-memory backend, suitable for tests and development.
func New(opts ...Option) (*Engine, error) {
	var o options
	o.cfg = hail.DefaultConfig()
	o.logger = slog.Default()
	o.backoff = backoff.DefaultStrategy()

	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		cfg:      o.cfg,
		logger:   o.logger,
		cache:    o.cache,
		queue:    o.queue,
		registry: job.NewRegistry(),
		hooks:    hook.NewRegistry(o.logger),
		gateway:  o.gateway,
		runners:  make(map[string]*worker.Runner),
	}

	dlqStore := o.dlqStore
	if e.cache == nil || e.queue == nil || dlqStore == nil {
		e.ownedStore = memory.New(memory.WithPopTimeout(o.cfg.PopTimeout))
		if e.cache == nil {
			e.cache = e.ownedStore
		}
		if e.queue == nil {
			e.queue = e.ownedStore
		}
		if dlqStore == nil {
			dlqStore = e.ownedStore
		}
	}
	e.dlqService = dlq.NewService(dlqStore, e.queue)

	for _, h := range o.hooks {
		e.hooks.Register(h)
	}

	mws := append([]middleware.Middleware{
		middleware.Recover(o.logger),
		middleware.Logging(o.logger),
		middleware.Timeout(),
	}, o.middleware...)

	e.executor = worker.NewExecutor(
		e.registry,
		e.queue,
		e.dlqService,
		e.hooks,
		o.backoff,
		o.logger,
		mws...,
	)

	if o.janitorSpec != "" {
		jn, err := dlq.NewJanitor(dlqStore, o.janitorSpec, o.janitorRetention, o.logger)
		if err != nil {
			return nil, fmt.Errorf("engine: janitor schedule: %w", err)
		}
		e.janitor = jn
	}

	return e, nil
}

// Register adds a job family and lazily creates its singleton worker.
// First call wins: re-registering a family name returns the already
// registered instance and no second worker is constructed. The returned
// family is the one the engine dispatches to.
func (e *Engine) Register(f *job.Family, opts ...worker.RunnerOption) *job.Family {
	registered := e.registry.Register(f)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.runners[registered.Name]; !ok {
		r := worker.NewRunner(registered, e.queue, e.executor, e.hooks, e.logger, opts...)
		e.runners[registered.Name] = r
		if e.started && !e.stopped {
			r.Start()
		}
	}

	return registered
}

// RegisterNotifications builds the notification family on the configured
// gateway and registers it. Returns hail.ErrNoGateway without a gateway.
func (e *Engine) RegisterNotifications(opts ...job.Option) (*job.Family, error) {
	if e.gateway == nil {
		return nil, hail.ErrNoGateway
	}
	mailer := notify.NewMailer(e.gateway, notify.WithLogger(e.logger))
	return e.Register(notify.NewFamily(mailer, opts...)), nil
}

// Enqueue appends a job to its family's queue and returns immediately;
// the caller is never blocked on delivery. The family must be registered
// and must bind the job name.
func (e *Engine) Enqueue(ctx context.Context, family, name string, payload any) (*job.Job, error) {
	fam, ok := e.registry.Get(family)
	if !ok {
		return nil, fmt.Errorf("enqueue %q: %w", family, hail.ErrFamilyNotRegistered)
	}
	if !fam.Binds(name) {
		return nil, fmt.Errorf("enqueue %q/%q: %w", family, name, hail.ErrUnknownJobName)
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("enqueue %q/%q: marshal payload: %w", family, name, err)
		}
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:          id.NewJobID(),
		Family:      family,
		Name:        name,
		Payload:     data,
		State:       job.StatePending,
		MaxAttempts: fam.Opts.MaxAttempts,
		Timeout:     fam.Opts.Timeout,
		RunAt:       now,
	}
	j.Touch(now)

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
	defer cancel()

	if err := e.queue.Push(opCtx, j); err != nil {
		return nil, fmt.Errorf("enqueue %q/%q: %w", family, name, err)
	}

	e.hooks.EmitJobEnqueued(ctx, j)

	return j, nil
}

// Start launches the worker loop of every registered family and the DLQ
// janitor, if configured. Families registered after Start get their
// workers started on registration.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return hail.ErrQueueClosed
	}
	if e.started {
		return nil
	}
	e.started = true

	for _, r := range e.runners {
		r.Start()
	}
	if e.janitor != nil {
		e.janitor.Start()
	}

	e.logger.Info("engine started", slog.Int("families", len(e.runners)))

	return nil
}

// Stop drains the engine: each worker finishes its in-flight job, the
// janitor exits, shutdown hooks fire, and the owned backend (if any)
// closes. Bounded by the context deadline or Config.ShutdownTimeout,
// whichever is sooner.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	runners := make([]*worker.Runner, 0, len(e.runners))
	for _, r := range e.runners {
		runners = append(runners, r)
	}
	e.mu.Unlock()

	stopCtx, cancel := context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(stopCtx)
	for _, r := range runners {
		g.Go(func() error {
			return r.Stop(gctx)
		})
	}
	err := g.Wait()

	if e.janitor != nil {
		e.janitor.Stop()
	}

	e.hooks.EmitShutdown(ctx)

	if e.ownedStore != nil {
		_ = e.ownedStore.Close()
	}

	if err != nil {
		return fmt.Errorf("engine: stop: %w", err)
	}

	e.logger.Info("engine stopped")

	return nil
}

// TokenStore builds a token store on the engine's cache, hooks, and queue.
// Engine-level configuration (TTL, login path, op timeout) applies first;
// opts may override it.
func (e *Engine) TokenStore(opts ...token.StoreOption) *token.Store {
	base := []token.StoreOption{
		token.WithTTL(e.cfg.TokenTTL),
		token.WithLoginPath(e.cfg.LoginPath),
		token.WithOpTimeout(e.cfg.OpTimeout),
		token.WithLogger(e.logger),
		token.WithHooks(e.hooks),
	}
	return token.NewStore(e.cache, e, append(base, opts...)...)
}

// Deduper builds an idempotency-key reservation store on the engine's cache.
func (e *Engine) Deduper(opts ...idem.DeduperOption) *idem.Deduper {
	return idem.NewDeduper(e.cache, opts...)
}

// DLQ returns the dead letter queue service.
func (e *Engine) DLQ() *dlq.Service { return e.dlqService }

// Hooks returns the lifecycle hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Cache returns the engine's cache backend.
func (e *Engine) Cache() kv.Cache { return e.cache }
