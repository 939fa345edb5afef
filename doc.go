// Package hail provides the ephemeral-credential and asynchronous-notification
// core of the Hail ride-booking platform: single-use, time-bound login tokens
// ("magic links") backed by an expiring key-value cache, decoupled from email
// delivery through typed, retryable background job families.
//
// Hail is designed as a library, not a service. Import it, configure a cache
// and queue backend, and register job families as ordinary Go functions.
//
// # Quick Start
//
//	backend := memory.New()
//	eng, err := engine.New(
//	    engine.WithCache(backend),
//	    engine.WithQueue(backend),
//	    engine.WithDLQStore(backend),
//	)
//
// # Architecture
//
// Each subsystem (token, queue, dlq) defines its own narrow store interface.
// A single backend (store/memory, store/redis) implements all of them.
//
// Job families are named classes of deferred work sharing one handler and
// exactly one worker loop per process. Delivery is at-least-once: handlers
// must tolerate duplicate execution. Token redemption is exactly-once,
// enforced by the cache's atomic get-and-delete primitive.
package hail
