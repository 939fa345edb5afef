// Package redis is the production backend, implementing the cache, queue,
// and DLQ contracts on a Redis server via go-redis.
//
// Key layout under the configurable prefix (default "hail:"):
//
//	hail:cache:<key>            cached value with TTL
//	hail:queue:<family>         ready list (RPUSH / BLPOP)
//	hail:delayed:<family>       delayed jobs, ZSET scored by run-at millis
//	hail:dlq:entry:<id>         dead letter entry blob (msgpack)
//	hail:dlq:failed             all entry IDs, ZSET scored by failed-at millis
//	hail:dlq:family:<family>    per-family entry IDs, same scoring
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/kv"
	"github.com/toimcz/hail/queue"
)

// Compile-time interface checks.
var (
	_ kv.Cache    = (*Store)(nil)
	_ queue.Queue = (*Store)(nil)
	_ dlq.Store   = (*Store)(nil)
)

// promoteScript atomically moves due delayed jobs onto the ready list.
// KEYS[1] = delayed zset, KEYS[2] = ready list, ARGV[1] = now millis,
// ARGV[2] = batch size.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, blob in ipairs(due) do
	redis.call('RPUSH', KEYS[2], blob)
	redis.call('ZREM', KEYS[1], blob)
end
return #due
`)

// Store is the Redis-backed implementation of all backend contracts.
// The client's lifecycle belongs to the caller; Close only stops queue
// consumption, it does not close the client.
type Store struct {
	client       redis.UniversalClient
	prefix       string
	popTimeout   time.Duration
	promoteBatch int
	closed       atomic.Bool
}

// Option configures the Store.
type Option func(*Store)

// WithPrefix overrides the key prefix (default "hail:").
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithPopTimeout sets how long a single Pop blocks before returning empty.
func WithPopTimeout(d time.Duration) Option {
	return func(s *Store) { s.popTimeout = d }
}

// New creates a Store on top of an existing Redis client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:       client,
		prefix:       "hail:",
		popTimeout:   time.Second,
		promoteBatch: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping verifies connectivity to the Redis server.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close stops queue consumption. Subsequent queue operations return
// hail.ErrQueueClosed. In-flight blocking pops drain on their next timeout.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) cacheKey(key string) string      { return s.prefix + "cache:" + key }
func (s *Store) readyKey(family string) string   { return s.prefix + "queue:" + family }
func (s *Store) delayedKey(family string) string { return s.prefix + "delayed:" + family }
func (s *Store) entryKey(entryID string) string  { return s.prefix + "dlq:entry:" + entryID }
func (s *Store) failedKey() string               { return s.prefix + "dlq:failed" }
func (s *Store) familyKey(family string) string  { return s.prefix + "dlq:family:" + family }

// ──────────────────────────────────────────────────
// kv.Cache
// ──────────────────────────────────────────────────

// Set stores value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.cacheKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %q: %w", key, err)
	}
	return nil
}

// Get returns the value for key, or hail.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, hail.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %q: %w", key, err)
	}
	return data, nil
}

// GetDel atomically returns and removes the value for key. Redis executes
// GETDEL as a single command, so of two concurrent callers exactly one
// observes the value.
func (s *Store) GetDel(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.GetDel(ctx, s.cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, hail.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getdel %q: %w", key, err)
	}
	return data, nil
}

// SetNX stores value under key only if the key is absent.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.cacheKey(key), value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %q: %w", key, err)
	}
	return ok, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: del %q: %w", key, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// queue.Queue
// ──────────────────────────────────────────────────

// Push appends the job to its family's ready list.
func (s *Store) Push(ctx context.Context, j *job.Job) error {
	if s.closed.Load() {
		return hail.ErrQueueClosed
	}

	blob, err := encodeJob(j)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.readyKey(j.Family), blob).Err(); err != nil {
		return fmt.Errorf("redis: push job %s: %w", j.ID, err)
	}
	return nil
}

// PushDelayed holds the job back until the delay lapses.
func (s *Store) PushDelayed(ctx context.Context, j *job.Job, delay time.Duration) error {
	if s.closed.Load() {
		return hail.ErrQueueClosed
	}

	cp := *j
	cp.RunAt = time.Now().UTC().Add(delay)

	blob, err := encodeJob(&cp)
	if err != nil {
		return err
	}

	member := redis.Z{
		Score:  float64(cp.RunAt.UnixMilli()),
		Member: blob,
	}
	if err := s.client.ZAdd(ctx, s.delayedKey(j.Family), member).Err(); err != nil {
		return fmt.Errorf("redis: push delayed job %s: %w", j.ID, err)
	}
	return nil
}

// Pop promotes due delayed jobs, then blocks on the family's ready list
// until a job arrives or the pop timeout lapses (nil, nil). The caller is
// expected to loop; delayed jobs become visible on a subsequent Pop.
func (s *Store) Pop(ctx context.Context, family string) (*job.Job, error) {
	if s.closed.Load() {
		return nil, hail.ErrQueueClosed
	}

	if err := s.promote(ctx, family); err != nil {
		return nil, err
	}

	res, err := s.client.BLPop(ctx, s.popTimeout, s.readyKey(family)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("redis: pop %q: %w", family, err)
	}
	if s.closed.Load() {
		// Closed while blocked: put the job back rather than lose it.
		_ = s.client.LPush(context.WithoutCancel(ctx), s.readyKey(family), res[1])
		return nil, hail.ErrQueueClosed
	}

	// BLPOP returns [key, value].
	return decodeJob([]byte(res[1]))
}

func (s *Store) promote(ctx context.Context, family string) error {
	now := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	keys := []string{s.delayedKey(family), s.readyKey(family)}

	err := promoteScript.Run(ctx, s.client, keys, now, s.promoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: promote delayed jobs %q: %w", family, err)
	}
	return nil
}

// Depth returns the number of jobs (ready and delayed) queued for a family.
func (s *Store) Depth(ctx context.Context, family string) (int64, error) {
	ready, err := s.client.LLen(ctx, s.readyKey(family)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: queue depth %q: %w", family, err)
	}
	delayed, err := s.client.ZCard(ctx, s.delayedKey(family)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: queue depth %q: %w", family, err)
	}
	return ready + delayed, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	blob, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	key := entry.ID.String()
	score := float64(entry.FailedAt.UnixMilli())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(key), blob, 0)
	pipe.ZAdd(ctx, s.failedKey(), redis.Z{Score: score, Member: key})
	pipe.ZAdd(ctx, s.familyKey(entry.Family), redis.Z{Score: score, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: push dlq entry %s: %w", entry.ID, err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	indexKey := s.failedKey()
	if opts.Family != "" {
		indexKey = s.familyKey(opts.Family)
	}

	stop := int64(-1)
	if opts.Limit > 0 {
		stop = int64(opts.Offset + opts.Limit - 1)
	}
	ids, err := s.client.ZRange(ctx, indexKey, int64(opts.Offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list dlq: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, entryID := range ids {
		keys[i] = s.entryKey(entryID)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list dlq: %w", err)
	}

	entries := make([]*dlq.Entry, 0, len(blobs))
	for _, blob := range blobs {
		str, ok := blob.(string)
		if !ok {
			// Entry purged between index read and fetch.
			continue
		}
		entry, err := decodeEntry([]byte(str))
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	blob, err := s.client.Get(ctx, s.entryKey(entryID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, hail.ErrDLQNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get dlq entry %s: %w", entryID, err)
	}
	return decodeEntry(blob)
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	entry, err := s.GetDLQ(ctx, entryID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	entry.ReplayedAt = &now

	blob, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.entryKey(entryID.String()), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis: replay dlq entry %s: %w", entryID, err)
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	cutoff := strconv.FormatInt(before.UnixMilli()-1, 10)

	ids, err := s.client.ZRangeByScore(ctx, s.failedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: purge dlq: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var removed int64
	for _, entryID := range ids {
		entry, err := s.GetDLQ(ctx, id.MustParse(entryID))
		if errors.Is(err, hail.ErrDLQNotFound) {
			_ = s.client.ZRem(ctx, s.failedKey(), entryID)
			continue
		}
		if err != nil {
			return removed, err
		}

		pipe := s.client.TxPipeline()
		pipe.Del(ctx, s.entryKey(entryID))
		pipe.ZRem(ctx, s.failedKey(), entryID)
		pipe.ZRem(ctx, s.familyKey(entry.Family), entryID)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("redis: purge dlq entry %s: %w", entryID, err)
		}
		removed++
	}
	return removed, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.client.ZCard(ctx, s.failedKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: count dlq: %w", err)
	}
	return count, nil
}
