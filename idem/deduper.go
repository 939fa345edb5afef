package idem

import (
	"context"
	"fmt"
	"time"

	"github.com/toimcz/hail/kv"
)

// reservePrefix namespaces reservation keys in the shared cache.
const reservePrefix = "idem:"

// DefaultReservationTTL covers the window in which a client retry of the
// same mutation should be recognized as a duplicate.
const DefaultReservationTTL = 24 * time.Hour

// Deduper reserves idempotency keys in the cache so a retried mutation is
// recognized as a duplicate. Reserve wins at most once per key per TTL.
type Deduper struct {
	cache kv.Cache
	ttl   time.Duration
}

// DeduperOption configures a Deduper.
type DeduperOption func(*Deduper)

// WithReservationTTL sets how long a reservation blocks duplicates.
func WithReservationTTL(ttl time.Duration) DeduperOption {
	return func(d *Deduper) { d.ttl = ttl }
}

// NewDeduper creates a Deduper on the given cache.
func NewDeduper(cache kv.Cache, opts ...DeduperOption) *Deduper {
	d := &Deduper{
		cache: cache,
		ttl:   DefaultReservationTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reserve attempts to claim the key. Returns true for the first caller
// within the TTL window; false means a duplicate mutation.
func (d *Deduper) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := d.cache.SetNX(ctx, reservePrefix+key, []byte("1"), d.ttl)
	if err != nil {
		return false, fmt.Errorf("idem: reserve %q: %w", key, err)
	}
	return ok, nil
}

// Release frees a reservation, letting the mutation be retried. Call it
// when the guarded mutation failed and the client should try again.
func (d *Deduper) Release(ctx context.Context, key string) error {
	if err := d.cache.Delete(ctx, reservePrefix+key); err != nil {
		return fmt.Errorf("idem: release %q: %w", key, err)
	}
	return nil
}
