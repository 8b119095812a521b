package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// ErrDisabled is returned by every Client operation when caching is off.
var ErrDisabled = errors.New("cache disabled")

// Client bounds every Store call with its own timeout and logs failures.
// Errors are returned so callers can fail open; none of them is fatal.
type Client struct {
	store     Store
	enabled   bool
	opTimeout time.Duration
	log       *zap.Logger
}

// NewClient wraps store. A nil store or enabled=false yields a client that
// reports ErrDisabled for everything.
func NewClient(store Store, enabled bool, opTimeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if opTimeout <= 0 {
		opTimeout = 300 * time.Millisecond
	}
	return &Client{store: store, enabled: enabled && store != nil, opTimeout: opTimeout, log: log.Named("cache")}
}

func (c *Client) Enabled() bool { return c != nil && c.enabled }

func (c *Client) run(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && !errors.Is(err, ErrMiss) {
		c.log.Warn("cache operation failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
	}
	return err
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := c.run(ctx, "get", key, func(ctx context.Context) error {
		b, err := c.store.Get(ctx, key)
		out = b
		return err
	})
	return out, err
}

func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.run(ctx, "set", key, func(ctx context.Context) error {
		return c.store.Set(ctx, key, value, ttl)
	})
}

func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.run(ctx, "del", keys[0], func(ctx context.Context) error {
		return c.store.Delete(ctx, keys...)
	})
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	var n int64
	err := c.run(ctx, "incr", key, func(ctx context.Context) error {
		v, err := c.store.Incr(ctx, key)
		n = v
		return err
	})
	return n, err
}

func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.run(ctx, "expire", key, func(ctx context.Context) error {
		return c.store.Expire(ctx, key, ttl)
	})
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := c.run(ctx, "ttl", key, func(ctx context.Context) error {
		v, err := c.store.TTL(ctx, key)
		d = v
		return err
	})
	return d, err
}

// GetJSON decodes the cached value at key into v.
func (c *Client) GetJSON(ctx context.Context, key string, v any) error {
	b, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.Delete(ctx, key)
		return ErrMiss
	}
	return nil
}

func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode cache value")
	}
	return c.Set(ctx, key, b, ttl)
}

func (c *Client) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Remember is a read-through helper: it returns the cached value at key, or
// loads, stores and returns it. Cache errors never fail the load. The
// boolean reports a cache hit.
func Remember[T any](ctx context.Context, c *Client, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, bool, error) {
	var cached T
	if err := c.GetJSON(ctx, key, &cached); err == nil {
		return cached, true, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, false, err
	}
	_ = c.SetJSON(ctx, key, v, ttl)
	return v, false, nil
}
