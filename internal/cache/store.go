package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the backend contract shared by the Redis and in-process caches.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr increments the counter at key, creating it at 1 with no expiry.
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, or a negative duration when the
	// key has none.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Close() error
}
