package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/hook"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/kv"
	"github.com/toimcz/hail/notify"
)

// Enqueuer schedules a background job. Satisfied by the engine; narrow so
// the token package does not depend on the full engine wiring.
type Enqueuer interface {
	Enqueue(ctx context.Context, family, name string, payload any) (*job.Job, error)
}

// Store issues and redeems login tokens against an expiring cache.
//
// Issue writes the token first and enqueues the notification second; an
// enqueue failure after a successful write leaves a live token with no
// email on the way. That gap is logged and surfaced through the
// DeliveryGap hook, never returned to the caller.
type Store struct {
	cache    kv.Cache
	enqueuer Enqueuer
	hooks    *hook.Registry
	logger   *slog.Logger

	ttl       time.Duration
	loginPath string
	opTimeout time.Duration
	now       func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL sets how long issued tokens stay redeemable.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithLoginPath sets the path segment used in redemption links.
func WithLoginPath(path string) StoreOption {
	return func(s *Store) { s.loginPath = path }
}

// WithOpTimeout bounds each cache operation issued from the request path.
func WithOpTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.opTimeout = d }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithHooks sets the lifecycle hook registry.
func WithHooks(hooks *hook.Registry) StoreOption {
	return func(s *Store) { s.hooks = hooks }
}

// WithNow overrides the clock. Used in tests to drive expiry.
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a token store. The enqueuer may be nil; Issue then
// still writes tokens but every issuance is a delivery gap.
func NewStore(cache kv.Cache, enqueuer Enqueuer, opts ...StoreOption) *Store {
	cfg := hail.DefaultConfig()
	s := &Store{
		cache:     cache,
		enqueuer:  enqueuer,
		logger:    slog.Default(),
		ttl:       cfg.TokenTTL,
		loginPath: cfg.LoginPath,
		opTimeout: cfg.OpTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hook.NewRegistry(s.logger)
	}
	return s
}

// Issue creates a single-use token for the subject, stores it with a
// cache-native TTL, and schedules the magic-link email. The returned Token
// carries the secret; it must not be exposed through any channel other
// than the delivered notification.
func (s *Store) Issue(ctx context.Context, subjectID, redirectTarget string, opts ...IssueOption) (*Token, error) {
	if s.cache == nil {
		return nil, hail.ErrNoCache
	}

	var iopt issueOptions
	for _, opt := range opts {
		opt(&iopt)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tok := &Token{
		ID:             secret,
		SubjectID:      subjectID,
		RedirectTarget: redirectTarget,
		IssuedAt:       now,
		ExpiresAt:      now.Add(s.ttl),
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("token: marshal: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.cache.Set(opCtx, cacheKey(tok.ID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("token: store: %w", err)
	}

	s.hooks.EmitTokenIssued(ctx, subjectID, tok.ExpiresAt)

	// Enqueue only after the cache write succeeded, so a failed write
	// never leaves an orphaned notification job.
	s.scheduleNotification(ctx, tok, iopt)

	return tok, nil
}

// Redeem atomically consumes the token with the given ID and returns it.
// Absent, already-consumed, and expired tokens all surface uniformly as
// hail.ErrTokenNotFound; the caller treats that as an authentication
// failure, not a system error.
func (s *Store) Redeem(ctx context.Context, tokenID string) (*Token, error) {
	if s.cache == nil {
		return nil, hail.ErrNoCache
	}

	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.cache.GetDel(opCtx, cacheKey(tokenID))
	if errors.Is(err, hail.ErrKeyNotFound) {
		return nil, hail.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token: redeem: %w", err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("token: unmarshal: %w", err)
	}

	// The cache already expired the key in the common case; this guards
	// against clock skew between the application and the cache.
	if tok.Expired(s.now().UTC()) {
		return nil, hail.ErrTokenNotFound
	}

	s.hooks.EmitTokenRedeemed(ctx, tok.SubjectID)

	return &tok, nil
}

// scheduleNotification enqueues the magic-link email. Failure is a
// delivery gap: the token is live, no email is coming, and a higher-level
// retry can re-issue. The gap is observable but never fails the issuance.
func (s *Store) scheduleNotification(ctx context.Context, tok *Token, iopt issueOptions) {
	var err error
	if s.enqueuer == nil {
		err = hail.ErrNoQueue
	} else {
		payload := notify.MagicLinkPayload{
			SubjectID:   tok.SubjectID,
			Destination: iopt.destination,
			Link:        tok.Link(s.loginPath),
		}
		_, err = s.enqueuer.Enqueue(ctx, notify.Family, notify.NameSendMagicLink, payload)
	}
	if err == nil {
		return
	}

	s.logger.Warn("delivery gap: token issued but notification not enqueued",
		slog.String("subject_id", tok.SubjectID),
		slog.String("error", err.Error()),
	)
	s.hooks.EmitDeliveryGap(ctx, tok.SubjectID, err)
}

// issueOptions holds per-issuance overrides.
type issueOptions struct {
	destination string
}

// IssueOption configures a single Issue call.
type IssueOption func(*issueOptions)

// WithDestination sets an explicit recipient address for the magic-link
// email instead of letting the gateway resolve it from the subject.
func WithDestination(addr string) IssueOption {
	return func(o *issueOptions) { o.destination = addr }
}
