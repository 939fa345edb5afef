// Package memory is a fully in-memory backend implementing the cache,
// queue, and DLQ contracts. Safe for concurrent access. Intended for unit
// testing and development; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

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

// cacheEntry is a cached value with its expiry instant.
// A zero expiresAt means the entry does not expire.
type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// familyQueue holds the ready and delayed jobs for one family.
type familyQueue struct {
	ready   []*job.Job
	delayed []*job.Job // sorted by RunAt ascending

	// notify wakes the family's consumer after a push. One-buffered:
	// each family has exactly one consumer, so a single pending signal
	// is enough.
	notify chan struct{}
}

func (q *familyQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// promoteDue moves delayed jobs whose RunAt has passed onto the ready list.
func (q *familyQueue) promoteDue(now time.Time) {
	i := 0
	for i < len(q.delayed) && !q.delayed[i].RunAt.After(now) {
		i++
	}
	if i > 0 {
		q.ready = append(q.ready, q.delayed[:i]...)
		q.delayed = q.delayed[i:]
	}
}

// Store is the in-memory backend.
type Store struct {
	mu sync.Mutex

	entries map[string]cacheEntry
	queues  map[string]*familyQueue
	dlqs    map[string]*dlq.Entry

	popTimeout time.Duration
	closed     bool
	closeCh    chan struct{}
}

// Option configures the Store.
type Option func(*Store)

// WithPopTimeout sets how long a single Pop blocks before returning empty.
func WithPopTimeout(d time.Duration) Option {
	return func(s *Store) { s.popTimeout = d }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:    make(map[string]cacheEntry),
		queues:     make(map[string]*familyQueue),
		dlqs:       make(map[string]*dlq.Entry),
		popTimeout: 250 * time.Millisecond,
		closeCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases all blocked consumers. Subsequent queue operations
// return hail.ErrQueueClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.closeCh)
	return nil
}

// familyLocked returns (creating if needed) the queue for a family.
// Caller must hold s.mu.
func (s *Store) familyLocked(family string) *familyQueue {
	q, ok := s.queues[family]
	if !ok {
		q = &familyQueue{notify: make(chan struct{}, 1)}
		s.queues[family] = q
	}
	return q
}

// ──────────────────────────────────────────────────
// kv.Cache
// ──────────────────────────────────────────────────

// Set stores value under key with the given TTL.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

// Get returns the value for key, or hail.ErrKeyNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, hail.ErrKeyNotFound
	}
	if entry.expired(time.Now()) {
		delete(s.entries, key)
		return nil, hail.ErrKeyNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// GetDel atomically returns the value for key and removes it. The single
// store mutex makes the read and delete indivisible: of two concurrent
// callers, exactly one observes the value.
func (s *Store) GetDel(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, hail.ErrKeyNotFound
	}
	delete(s.entries, key)
	if entry.expired(time.Now()) {
		return nil, hail.ErrKeyNotFound
	}
	return entry.value, nil
}

// SetNX stores value under key only if the key is absent or expired.
func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && !entry.expired(time.Now()) {
		return false, nil
	}

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
	return true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// ──────────────────────────────────────────────────
// queue.Queue
// ──────────────────────────────────────────────────

// Push appends the job to its family's ready list.
func (s *Store) Push(_ context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hail.ErrQueueClosed
	}

	cp := *j
	q := s.familyLocked(j.Family)
	q.ready = append(q.ready, &cp)
	q.signal()
	return nil
}

// PushDelayed holds the job back until the delay lapses.
func (s *Store) PushDelayed(_ context.Context, j *job.Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return hail.ErrQueueClosed
	}

	cp := *j
	cp.RunAt = time.Now().UTC().Add(delay)

	q := s.familyLocked(j.Family)
	q.delayed = append(q.delayed, &cp)
	sort.Slice(q.delayed, func(i, k int) bool {
		return q.delayed[i].RunAt.Before(q.delayed[k].RunAt)
	})
	q.signal()
	return nil
}

// Pop blocks until a job is ready on the family's queue, the pop timeout
// lapses (nil, nil), the context is done, or the store is closed.
func (s *Store) Pop(ctx context.Context, family string) (*job.Job, error) {
	deadline := time.NewTimer(s.popTimeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, hail.ErrQueueClosed
		}

		q := s.familyLocked(family)
		q.promoteDue(time.Now().UTC())

		if len(q.ready) > 0 {
			j := q.ready[0]
			q.ready = q.ready[1:]
			s.mu.Unlock()
			cp := *j
			return &cp, nil
		}

		// Nothing ready: wait for a push, the next delayed job coming
		// due, the pop timeout, cancellation, or close.
		var promoteC <-chan time.Time
		var promote *time.Timer
		if len(q.delayed) > 0 {
			promote = time.NewTimer(time.Until(q.delayed[0].RunAt))
			promoteC = promote.C
		}
		notify := q.notify
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			stopTimer(promote)
			return nil, ctx.Err()
		case <-s.closeCh:
			stopTimer(promote)
			return nil, hail.ErrQueueClosed
		case <-deadline.C:
			stopTimer(promote)
			return nil, nil
		case <-notify:
			stopTimer(promote)
		case <-promoteC:
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Depth returns the number of jobs (ready and delayed) queued for a family.
func (s *Store) Depth(family string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[family]
	if !ok {
		return 0
	}
	return len(q.ready) + len(q.delayed)
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// PushDLQ adds a failed job entry to the dead letter queue.
func (s *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	s.dlqs[entry.ID.String()] = &cp
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*dlq.Entry, 0, len(s.dlqs))
	for _, entry := range s.dlqs {
		if opts.Family != "" && entry.Family != opts.Family {
			continue
		}
		cp := *entry
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].FailedAt.Before(result[k].FailedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.dlqs[entryID.String()]
	if !ok {
		return nil, hail.ErrDLQNotFound
	}
	cp := *entry
	return &cp, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.dlqs[entryID.String()]
	if !ok {
		return hail.ErrDLQNotFound
	}
	now := time.Now().UTC()
	entry.ReplayedAt = &now
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.dlqs {
		if entry.FailedAt.Before(before) {
			delete(s.dlqs, key)
			removed++
		}
	}
	return removed, nil
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.dlqs)), nil
}
