package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emontazeri82/Shell-Stories-Studio-sub000/internal/cache"
)

func TestFixedWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	mem := cache.NewMemory().WithClock(func() time.Time { return now })
	l := New(mem, 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow returned error: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 3-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 3-i, res.Remaining)
		}
		now = now.Add(10 * time.Second)
	}

	res, _ := l.Allow(ctx, "10.0.0.1")
	if res.Allowed {
		t.Fatal("fourth request within the window should be rejected")
	}
	if res.Reset != 30*time.Second {
		t.Fatalf("expected 30s until reset, got %s", res.Reset)
	}

	if other, _ := l.Allow(ctx, "10.0.0.2"); !other.Allowed {
		t.Fatal("limits are per key")
	}

	now = now.Add(30 * time.Second)
	if res, _ := l.Allow(ctx, "10.0.0.1"); !res.Allowed || res.Remaining != 2 {
		t.Fatalf("first request after window expiry should pass, got %+v", res)
	}
}

type brokenCounter struct{}

func (brokenCounter) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (brokenCounter) Expire(context.Context, string, time.Duration) error { return nil }
func (brokenCounter) TTL(context.Context, string) (time.Duration, error)  { return 0, nil }

func TestBackendFailureAllows(t *testing.T) {
	res, err := New(brokenCounter{}, 1, time.Minute).Allow(context.Background(), "ip")
	if err == nil {
		t.Fatal("expected the backend error to be reported")
	}
	if !res.Allowed {
		t.Fatal("backend failure must fail open")
	}
}
