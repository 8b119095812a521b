// Package ratelimit implements a fixed-window request counter on top of the
// cache backend.
package ratelimit

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Counter is the slice of the cache client the limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Result describes one Allow decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// Reset is the time left in the current window.
	Reset time.Duration
}

type Limiter struct {
	counter Counter
	limit   int
	window  time.Duration
	prefix  string
}

func New(counter Counter, limit int, window time.Duration) *Limiter {
	return &Limiter{counter: counter, limit: limit, window: window, prefix: "rl:"}
}

// Allow counts one hit for key. The expiry is set only on the first hit of
// a window, so the window does not slide. A backend error is returned with
// an allowing Result; callers fail open.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	res := Result{Allowed: true, Limit: l.limit, Remaining: l.limit, Reset: l.window}
	k := l.prefix + key

	n, err := l.counter.Incr(ctx, k)
	if err != nil {
		return res, errors.Wrap(err, "rate limit incr")
	}
	if n == 1 {
		if err := l.counter.Expire(ctx, k, l.window); err != nil {
			return res, errors.Wrap(err, "rate limit expire")
		}
	} else if ttl, err := l.counter.TTL(ctx, k); err == nil {
		if ttl > 0 {
			res.Reset = ttl
		} else {
			// Counter survived without an expiry (crash between INCR and
			// EXPIRE); give it one so the key cannot block forever.
			_ = l.counter.Expire(ctx, k, l.window)
		}
	}

	res.Remaining = l.limit - int(n)
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	res.Allowed = int(n) <= l.limit
	return res, nil
}
