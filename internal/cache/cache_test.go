package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if b, err := m.Get(ctx, "k"); err != nil || string(b) != "v" {
		t.Fatalf("expected hit, got %q %v", b, err)
	}
	now = now.Add(time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryIncrKeepsExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory().WithClock(func() time.Time { return now })
	ctx := context.Background()

	n, _ := m.Incr(ctx, "c")
	if n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if d, _ := m.TTL(ctx, "c"); d >= 0 {
		t.Fatalf("fresh counter should have no expiry, got %s", d)
	}
	_ = m.Expire(ctx, "c", 10*time.Second)
	now = now.Add(4 * time.Second)
	if n, _ := m.Incr(ctx, "c"); n != 2 {
		t.Fatalf("expected 2, got %d", n)
	}
	if d, _ := m.TTL(ctx, "c"); d != 6*time.Second {
		t.Fatalf("incr must not reset expiry, ttl=%s", d)
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis("redis://" + mr.Addr())
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if b, err := s.Get(ctx, "k"); err != nil || string(b) != "v" {
		t.Fatalf("expected v, got %q %v", b, err)
	}
	n, err := s.Incr(ctx, "c")
	if err != nil || n != 1 {
		t.Fatalf("expected 1, got %d %v", n, err)
	}
	if err := s.Expire(ctx, "c", 30*time.Second); err != nil {
		t.Fatalf("Expire returned error: %v", err)
	}
	if d, err := s.TTL(ctx, "c"); err != nil || d != 30*time.Second {
		t.Fatalf("expected 30s ttl, got %s %v", d, err)
	}
	mr.FastForward(31 * time.Second)
	if _, err := s.Get(ctx, "c"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected counter to expire, got %v", err)
	}
}

func TestClientDisabledAndFailOpen(t *testing.T) {
	ctx := context.Background()
	off := NewClient(NewMemory(), false, 0, nil)
	if _, err := off.Get(ctx, "k"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	mr := miniredis.RunT(t)
	c := NewClient(NewRedis(mr.Addr()), true, 50*time.Millisecond, nil)
	mr.Close()

	loads := 0
	v, hit, err := Remember(ctx, c, "products", time.Minute, func(context.Context) ([]int, error) {
		loads++
		return []int{1, 2}, nil
	})
	if err != nil {
		t.Fatalf("Remember should fail open, got %v", err)
	}
	if hit || loads != 1 || len(v) != 2 {
		t.Fatalf("unexpected result hit=%v loads=%d v=%v", hit, loads, v)
	}
}

func TestRememberReadsThrough(t *testing.T) {
	ctx := context.Background()
	c := NewClient(NewMemory(), true, time.Second, nil)
	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"conch"}, nil
	}
	if _, hit, _ := Remember(ctx, c, "k", time.Minute, load); hit {
		t.Fatal("first call should miss")
	}
	v, hit, err := Remember(ctx, c, "k", time.Minute, load)
	if err != nil || !hit || loads != 1 || v[0] != "conch" {
		t.Fatalf("expected cached hit, got hit=%v loads=%d v=%v err=%v", hit, loads, v, err)
	}
}
