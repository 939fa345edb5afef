package job

import "time"

// Options configures per-family job behavior.
type Options struct {
	// MaxAttempts is the total number of execution attempts before a job
	// is moved to the dead letter queue. The first execution counts.
	MaxAttempts int

	// Timeout is the maximum duration a single attempt may run before
	// its context is cancelled.
	Timeout time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		Timeout:     time.Minute,
	}
}

// Option is a functional option for configuring a family.
type Option func(*Options)

// WithMaxAttempts sets the total number of execution attempts.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.MaxAttempts = n
	}
}

// WithTimeout sets the maximum execution duration per attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
