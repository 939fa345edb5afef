package hail

import "time"

// Config holds configuration shared across the engine and its subsystems.
type Config struct {
	// TokenTTL is how long an issued login token stays redeemable.
	TokenTTL time.Duration

	// LoginPath is the path segment inserted between the redirect target
	// and the token in redemption links.
	LoginPath string

	// MaxAttempts is the default number of execution attempts for a job
	// before it is moved to the dead letter queue.
	MaxAttempts int

	// PopTimeout bounds a single blocking queue pop. Workers wake at
	// least this often to observe shutdown.
	PopTimeout time.Duration

	// OpTimeout bounds individual cache and queue operations issued from
	// the request path.
	OpTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for workers to drain
	// in-flight jobs during Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TokenTTL:        30 * time.Minute,
		LoginPath:       "login",
		MaxAttempts:     5,
		PopTimeout:      1 * time.Second,
		OpTimeout:       5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}
