package hail

import "context"

type ctxKey int

const idempotencyKeyCtx ctxKey = iota

// WithIdempotencyKey returns a context carrying a validated idempotency key.
// Mutation handlers thread the key from request validation to whatever
// deduplication store they maintain.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKeyCtx, key)
}

// IdempotencyKeyFrom extracts the idempotency key from the context.
// Returns false if no key was attached.
func IdempotencyKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKeyCtx).(string)
	return key, ok
}
