package middleware_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/toimcz/hail/id"
	"github.com/toimcz/hail/job"
	mw "github.com/toimcz/hail/middleware"
)

func newTestJob() *job.Job {
	return &job.Job{
		ID:      id.NewJobID(),
		Family:  "notification:send",
		Name:    "send-magic-link",
		Attempt: 2,
	}
}

func TestChain_Order(t *testing.T) {
	var order []string

	tag := func(name string) mw.Middleware {
		return func(ctx context.Context, _ *job.Job, next mw.Handler) error {
			order = append(order, name+":before")
			err := next(ctx)
			order = append(order, name+":after")
			return err
		}
	}

	chain := mw.Chain(tag("outer"), tag("inner"))
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := mw.Chain()
	called := false
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called through empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	want := errors.New("handler failed")
	chain := mw.Chain(mw.Logging(slog.Default()))
	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	m := mw.Recover(slog.Default())
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("gateway exploded")
	})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestRecover_PassesThroughSuccess(t *testing.T) {
	m := mw.Recover(slog.Default())
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTimeout_CancelsLongHandler(t *testing.T) {
	m := mw.Timeout()
	j := newTestJob()
	j.Timeout = 10 * time.Millisecond

	err := m(context.Background(), j, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestTimeout_ZeroMeansNoDeadline(t *testing.T) {
	m := mw.Timeout()
	j := newTestJob()
	j.Timeout = 0

	err := m(context.Background(), j, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no deadline for zero Timeout")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
