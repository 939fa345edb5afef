package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toimcz/hail"
	"github.com/toimcz/hail/backoff"
	"github.com/toimcz/hail/dlq"
	"github.com/toimcz/hail/engine"
	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
	"github.com/toimcz/hail/notify"
	"github.com/toimcz/hail/token"
)

// countingGateway fails the first failN sends, then succeeds, recording
// every invocation.
type countingGateway struct {
	mu    sync.Mutex
	calls int
	failN int
	sent  []*notify.Message
}

func (g *countingGateway) Send(_ context.Context, msg *notify.Message) ([]id.DeliveryID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.calls <= g.failN {
		return nil, errors.New("gateway down")
	}
	g.sent = append(g.sent, msg)
	return []id.DeliveryID{id.NewDeliveryID()}, nil
}

func (g *countingGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *countingGateway) delivered() []*notify.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*notify.Message(nil), g.sent...)
}

// waitFor polls cond until it holds or the deadline lapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()

	base := []engine.Option{
		engine.WithBackoff(backoff.NewConstant(time.Millisecond)),
		engine.WithConfig(func() hail.Config {
			cfg := hail.DefaultConfig()
			cfg.PopTimeout = 20 * time.Millisecond
			cfg.ShutdownTimeout = 2 * time.Second
			return cfg
		}()),
	}
	e, err := engine.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func TestRegister_FirstCallWins(t *testing.T) {
	e := newTestEngine(t)

	first := job.NewFamily("reports:build")
	second := job.NewFamily("reports:build")

	got1 := e.Register(first)
	got2 := e.Register(second)

	if got1 != first {
		t.Error("first registration should return the registered instance")
	}
	if got2 != first {
		t.Error("second registration should return the existing instance")
	}
}

func TestEnqueue_RequiresRegisteredFamilyAndName(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Enqueue(ctx, "unknown:family", "x", nil)
	if !errors.Is(err, hail.ErrFamilyNotRegistered) {
		t.Errorf("err = %v, want ErrFamilyNotRegistered", err)
	}

	f := job.NewFamily("reports:build")
	job.Bind(f, "daily", func(context.Context, struct{}) error { return nil })
	e.Register(f)

	_, err = e.Enqueue(ctx, "reports:build", "weekly", nil)
	if !errors.Is(err, hail.ErrUnknownJobName) {
		t.Errorf("err = %v, want ErrUnknownJobName", err)
	}
}

func TestEnqueue_FireAndForget(t *testing.T) {
	e := newTestEngine(t)

	var ran atomic.Int32
	block := make(chan struct{})
	f := job.NewFamily("reports:build")
	job.Bind(f, "daily", func(context.Context, struct{}) error {
		<-block
		ran.Add(1)
		return nil
	})
	e.Register(f)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	j, err := e.Enqueue(context.Background(), "reports:build", "daily", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Enqueue blocked for %v", elapsed)
	}
	if j.State != job.StatePending {
		t.Errorf("State = %q, want pending", j.State)
	}

	close(block)
	waitFor(t, 2*time.Second, func() bool { return ran.Load() == 1 })
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Handler fails twice then succeeds with maxAttempts=5: the gateway
	// must be invoked exactly 3 times and nothing reaches the DLQ.
	gw := &countingGateway{failN: 2}
	e := newTestEngine(t, engine.WithGateway(gw))

	if _, err := e.RegisterNotifications(job.WithMaxAttempts(5)); err != nil {
		t.Fatalf("RegisterNotifications: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err := e.Enqueue(context.Background(), notify.Family, notify.NameSendMagicLink, notify.MagicLinkPayload{
		SubjectID: "u1",
		Link:      "https://app.example/login/abc",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return len(gw.delivered()) == 1 })

	if got := gw.callCount(); got != 3 {
		t.Errorf("gateway invocations = %d, want 3", got)
	}

	count, err := e.DLQ().Store().CountDLQ(context.Background())
	if err != nil {
		t.Fatalf("CountDLQ: %v", err)
	}
	if count != 0 {
		t.Errorf("DLQ count = %d, want 0", count)
	}
}

func TestRetry_DeadLettersAfterExhaustion(t *testing.T) {
	// Handler fails every time with maxAttempts=3: exactly 3 gateway
	// invocations, then the job lands in the DLQ with no further retry.
	gw := &countingGateway{failN: 1 << 30}
	e := newTestEngine(t, engine.WithGateway(gw))

	if _, err := e.RegisterNotifications(job.WithMaxAttempts(3)); err != nil {
		t.Fatalf("RegisterNotifications: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	_, err := e.Enqueue(ctx, notify.Family, notify.NameSendMagicLink, notify.MagicLinkPayload{
		SubjectID: "u1",
		Link:      "https://app.example/login/abc",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		count, err := e.DLQ().Store().CountDLQ(ctx)
		return err == nil && count == 1
	})

	// Give any stray retry a moment to show up, then assert the count.
	time.Sleep(100 * time.Millisecond)
	if got := gw.callCount(); got != 3 {
		t.Errorf("gateway invocations = %d, want exactly 3", got)
	}

	entries, err := e.DLQ().Store().ListDLQ(ctx, dlq.ListOpts{Family: notify.Family})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("DLQ entries = %d, want 1", len(entries))
	}
	if entries[0].Attempts != 3 {
		t.Errorf("entry attempts = %d, want 3", entries[0].Attempts)
	}
	if entries[0].JobName != notify.NameSendMagicLink {
		t.Errorf("entry job name = %q", entries[0].JobName)
	}
}

func TestDLQ_ReplayReentersQueue(t *testing.T) {
	gw := &countingGateway{failN: 3}
	e := newTestEngine(t, engine.WithGateway(gw))

	if _, err := e.RegisterNotifications(job.WithMaxAttempts(3)); err != nil {
		t.Fatalf("RegisterNotifications: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx := context.Background()
	_, err := e.Enqueue(ctx, notify.Family, notify.NameSendMagicLink, notify.MagicLinkPayload{
		SubjectID: "u1",
		Link:      "https://app.example/login/abc",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		count, err := e.DLQ().Store().CountDLQ(ctx)
		return err == nil && count == 1
	})

	entries, err := e.DLQ().Store().ListDLQ(ctx, dlq.ListOpts{})
	if err != nil {
		t.Fatalf("ListDLQ: %v", err)
	}

	// The gateway now succeeds; the replayed job should deliver.
	if _, err := e.DLQ().Replay(ctx, entries[0].ID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return len(gw.delivered()) == 1 })

	got, err := e.DLQ().Store().GetDLQ(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetDLQ: %v", err)
	}
	if got.ReplayedAt == nil {
		t.Error("entry not marked replayed")
	}
}

func TestTokenFlow_EndToEnd(t *testing.T) {
	gw := &countingGateway{}
	e := newTestEngine(t, engine.WithGateway(gw))

	if _, err := e.RegisterNotifications(); err != nil {
		t.Fatalf("RegisterNotifications: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ts := e.TokenStore()
	ctx := context.Background()

	tok, err := ts.Issue(ctx, "u1", "https://app.example/", token.WithDestination("rider@example.com"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// The magic-link email arrives asynchronously.
	waitFor(t, 5*time.Second, func() bool { return len(gw.delivered()) == 1 })

	msg := gw.delivered()[0]
	if msg.To != "rider@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	wantLink := "https://app.example/login/" + tok.ID
	if msg.Params["link"] != wantLink {
		t.Errorf("link = %q, want %q", msg.Params["link"], wantLink)
	}

	got, err := ts.Redeem(ctx, tok.ID)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if got.SubjectID != "u1" {
		t.Errorf("SubjectID = %q, want u1", got.SubjectID)
	}

	if _, err := ts.Redeem(ctx, tok.ID); !errors.Is(err, hail.ErrTokenNotFound) {
		t.Errorf("second Redeem = %v, want ErrTokenNotFound", err)
	}
}

func TestStop_DrainsInFlightJob(t *testing.T) {
	e := newTestEngine(t)

	var finished atomic.Bool
	started := make(chan struct{})
	f := job.NewFamily("reports:build")
	job.Bind(f, "daily", func(context.Context, struct{}) error {
		close(started)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return nil
	})
	e.Register(f)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := e.Enqueue(context.Background(), "reports:build", "daily", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !finished.Load() {
		t.Error("Stop returned before the in-flight job finished")
	}
}

func TestStop_Idempotent(t *testing.T) {
	e, err := engine.New()
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx := context.Background()
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := e.Start(); !errors.Is(err, hail.ErrQueueClosed) {
		t.Errorf("Start after Stop = %v, want ErrQueueClosed", err)
	}
}

func TestNew_InvalidJanitorSpec(t *testing.T) {
	_, err := engine.New(engine.WithJanitor("not a cron spec", time.Hour))
	if err == nil {
		t.Fatal("expected error for invalid janitor schedule")
	}
}
