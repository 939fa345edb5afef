package engine

import (
	"log/slog"
	"time"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/backoff"
	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/hook"
	"github.com/toimcz/hail/kv"
	"github.com/toimcz/hail/middleware"
	"github.com/toimcz/hail/notify"
	"github.com/toimcz/hail/queue"
)

type options struct {
	cfg        hail.Config
	logger     *slog.Logger
	cache      kv.Cache
	queue      queue.Queue
	dlqStore   dlq.Store
	gateway    notify.Gateway
	backoff    backoff.Strategy
	middleware []middleware.Middleware
	hooks      []hook.Hook

	janitorSpec      string
	janitorRetention time.Duration
}

// Option configures the Engine.
type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg hail.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the engine's logger, shared with all subsystems it
// constructs.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCache sets the cache backend for tokens and idempotency reservations.
func WithCache(cache kv.Cache) Option {
	return func(o *options) { o.cache = cache }
}

// WithQueue sets the job queue backend.
func WithQueue(q queue.Queue) Option {
	return func(o *options) { o.queue = q }
}

// WithDLQStore sets the dead letter queue backend.
func WithDLQStore(store dlq.Store) Option {
	return func(o *options) { o.dlqStore = store }
}

// WithGateway sets the delivery gateway used by RegisterNotifications.
func WithGateway(gw notify.Gateway) Option {
	return func(o *options) { o.gateway = gw }
}

// WithBackoff replaces the default retry backoff strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *options) { o.backoff = s }
}

// WithMiddleware appends middleware to the default execution chain
// (recover, logging, timeout).
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mws...) }
}

// WithHook registers a lifecycle hook at construction time.
func WithHook(h hook.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithJanitor schedules DLQ purging: spec is a standard 5-field cron
// expression, retention is how long failed entries are kept.
func WithJanitor(spec string, retention time.Duration) Option {
	return func(o *options) {
		o.janitorSpec = spec
		o.janitorRetention = retention
	}
}
