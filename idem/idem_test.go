package idem_test

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/toimcz/hail/idem"
	"github.com/toimcz/hail/store/memory"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantKey string
		wantOK  bool
	}{
		{"uuid", "123e4567-e89b-12d3-a456-426614174000", "123e4567-e89b-12d3-a456-426614174000", true},
		{"hex 64", strings.Repeat("Ab", 32), strings.Repeat("ab", 32), true},
		{"too short", "abc1234567", "", false},
		{"empty", "", "", false},
		{"hex 65", strings.Repeat("a", 65), "", false},
		{"uuid shaped but invalid", "123e4567-e89b-12d3-a456-42661417400z", "", false},
		{"whitespace trimmed", "  123e4567-e89b-12d3-a456-426614174000  ", "123e4567-e89b-12d3-a456-426614174000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, issues := idem.Validate(tt.raw)
			if tt.wantOK {
				if !issues.Empty() {
					t.Fatalf("unexpected issues: %v", issues)
				}
				if key != tt.wantKey {
					t.Errorf("key = %q, want %q", key, tt.wantKey)
				}
				return
			}

			if issues.Empty() {
				t.Fatal("expected validation issues")
			}
			if key != "" {
				t.Errorf("key = %q, want empty on invalid input", key)
			}
			if len(issues[idem.FieldName]) == 0 {
				t.Errorf("issues not keyed under %q: %v", idem.FieldName, issues)
			}
		})
	}
}

func TestExtractAndValidate_FromValues(t *testing.T) {
	form := url.Values{}
	form.Set(idem.FieldName, "123e4567-e89b-12d3-a456-426614174000")

	key, issues := idem.ExtractAndValidate(form)
	if !issues.Empty() {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if key != "123e4567-e89b-12d3-a456-426614174000" {
		t.Errorf("key = %q", key)
	}
}

func TestIssues_MergeCombinesFieldSets(t *testing.T) {
	_, issues := idem.Validate("nope")

	other := make(idem.Issues)
	other.Add("email", "email is required")
	other.Add(idem.FieldName, "duplicate request")

	issues.Merge(other)

	if len(issues["email"]) != 1 {
		t.Errorf("email issues = %v, want 1", issues["email"])
	}
	if len(issues[idem.FieldName]) != 2 {
		t.Errorf("%s issues = %v, want 2", idem.FieldName, issues[idem.FieldName])
	}
	if len(issues.Fields()) != 2 {
		t.Errorf("fields = %v, want 2 entries", issues.Fields())
	}
}

func TestDeduper_FirstReservationWins(t *testing.T) {
	cache := memory.New()
	t.Cleanup(func() { _ = cache.Close() })

	d := idem.NewDeduper(cache)
	ctx := context.Background()
	key := "123e4567-e89b-12d3-a456-426614174000"

	ok, err := d.Reserve(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first Reserve = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = d.Reserve(ctx, key)
	if err != nil {
		t.Fatalf("second Reserve: %v", err)
	}
	if ok {
		t.Error("second Reserve should report a duplicate")
	}
}

func TestDeduper_ReleaseAllowsRetry(t *testing.T) {
	cache := memory.New()
	t.Cleanup(func() { _ = cache.Close() })

	d := idem.NewDeduper(cache)
	ctx := context.Background()
	key := strings.Repeat("ab", 32)

	if ok, _ := d.Reserve(ctx, key); !ok {
		t.Fatal("first Reserve should win")
	}
	if err := d.Release(ctx, key); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := d.Reserve(ctx, key); !ok {
		t.Error("Reserve after Release should win again")
	}
}

func TestDeduper_ReservationExpires(t *testing.T) {
	cache := memory.New()
	t.Cleanup(func() { _ = cache.Close() })

	d := idem.NewDeduper(cache, idem.WithReservationTTL(10*time.Millisecond))
	ctx := context.Background()
	key := strings.Repeat("cd", 32)

	if ok, _ := d.Reserve(ctx, key); !ok {
		t.Fatal("first Reserve should win")
	}
	time.Sleep(30 * time.Millisecond)
	if ok, _ := d.Reserve(ctx, key); !ok {
		t.Error("Reserve after TTL lapse should win")
	}
}
