package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/toimcz/hail"
)

// HandlerFunc is a type-erased handler for one job name within a family.
// The typed Bind[T] helper converts a typed handler to a HandlerFunc at
// bind time by closing over JSON unmarshal + the typed function.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Family is a named class of deferred work. It owns a closed set of job
// names, each bound to one handler, and is consumed by exactly one worker
// loop per process. Handlers must be idempotent: delivery is at-least-once.
type Family struct {
	// Name identifies the family and its backing queue,
	// e.g. "notification:send".
	Name string

	// Opts configures attempts and per-job execution timeout for every
	// job enqueued to this family.
	Opts Options

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewFamily creates a family with no bound job names.
func NewFamily(name string, opts ...Option) *Family {
	f := &Family{
		Name:     name,
		Opts:     DefaultOptions(),
		handlers: make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(&f.Opts)
	}
	return f
}

// Bind registers a typed handler for a job name within the family. The
// typed function is wrapped in a closure that JSON-unmarshals the payload
// into T before calling it.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func Bind[T any](f *Family, name string, fn func(ctx context.Context, payload T) error) {
	handler := func(ctx context.Context, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("unmarshal payload for job %q: %w", name, err)
			}
		}
		return fn(ctx, t)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = handler
}

// Handle dispatches on the job name to the matching bound handler.
// An unbound name is an error: the family's name set is a closed
// enumeration.
func (f *Family) Handle(ctx context.Context, name string, payload []byte) error {
	f.mu.RLock()
	h, ok := f.handlers[name]
	f.mu.RUnlock()

	if !ok {
		return fmt.Errorf("family %q: %q: %w", f.Name, name, hail.ErrUnknownJobName)
	}
	return h(ctx, payload)
}

// Names returns all job names bound in the family.
func (f *Family) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.handlers))
	for name := range f.handlers {
		names = append(names, name)
	}
	return names
}

// Binds reports whether the family has a handler for the given job name.
func (f *Family) Binds(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.handlers[name]
	return ok
}
