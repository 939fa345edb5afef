// Package kv defines the expiring key-value cache contract consumed by the
// token store and the idempotency deduper. A single backend (store/memory,
// store/redis) implements it alongside the queue and DLQ contracts.
package kv

import (
	"context"
	"time"
)

// Cache is an expiring key-value store. Keys vanish on their own once the
// TTL lapses; callers never need explicit cleanup.
//
// Implementations must make GetDel atomic with respect to concurrent
// GetDel calls for the same key: exactly one caller observes the value,
// every other caller gets hail.ErrKeyNotFound. A plain read-then-delete
// pair is not an acceptable implementation.
type Cache interface {
	// Set stores value under key with the given TTL. A zero TTL means
	// the key does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or hail.ErrKeyNotFound if the key
	// is absent or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// GetDel atomically returns the value for key and removes it.
	// Returns hail.ErrKeyNotFound if the key is absent or has expired.
	GetDel(ctx context.Context, key string) ([]byte, error)

	// SetNX stores value under key only if the key does not already
	// exist. Returns true if the key was set.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
