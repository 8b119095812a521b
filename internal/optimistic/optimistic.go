// Package optimistic applies list mutations locally before the server
// confirms them, and restores the exact previous bytes when it refuses.
package optimistic

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/go-faster/errors"
)

// Cache holds encoded query results by key.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]byte
	// invalidated records keys whose data must be refetched.
	invalidated map[string]bool
}

func NewCache() *Cache {
	return &Cache{entries: map[string][]byte{}, invalidated: map[string]bool{}}
}

// Get returns a copy of the bytes stored under key.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(b), true
}

func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = bytes.Clone(value)
	delete(c.invalidated, key)
}

// Stale reports whether key was invalidated since its last Set.
func (c *Cache) Stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated[key]
}

func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated[key] = true
}

// GetJSON decodes the entry under key into v.
func (c *Cache) GetJSON(key string, v any) (bool, error) {
	b, ok := c.Get(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return true, errors.Wrap(err, "decode cached "+key)
	}
	return true, nil
}

func (c *Cache) SetJSON(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode cached "+key)
	}
	c.Set(key, b)
	return nil
}

// Tx is one optimistic mutation awaiting the server's answer.
type Tx struct {
	cache    *Cache
	key      string
	snapshot []byte
	existed  bool
	done     bool
}

// Begin snapshots key and applies mutate to the current bytes. mutate gets
// nil when the key is empty. If mutate fails the cache is untouched.
// mutate runs without the cache lock held, so it may read the cache; when
// the entry changes while it runs, mutate is applied again to the new bytes.
func Begin(c *Cache, key string, mutate func(current []byte) ([]byte, error)) (*Tx, error) {
	for {
		c.mu.Lock()
		snapshot, existed := c.entries[key]
		c.mu.Unlock()

		next, err := mutate(bytes.Clone(snapshot))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		current, still := c.entries[key]
		if still == existed && bytes.Equal(current, snapshot) {
			c.entries[key] = next
			c.mu.Unlock()
			return &Tx{cache: c, key: key, snapshot: snapshot, existed: existed}, nil
		}
		c.mu.Unlock()
	}
}

// BeginJSON is Begin for a JSON value of type T.
func BeginJSON[T any](c *Cache, key string, mutate func(v *T) error) (*Tx, error) {
	return Begin(c, key, func(current []byte) ([]byte, error) {
		var v T
		if len(current) > 0 {
			if err := json.Unmarshal(current, &v); err != nil {
				return nil, errors.Wrap(err, "decode cached "+key)
			}
		}
		if err := mutate(&v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
}

// Commit marks the key for refetch after the server accepted the change.
func (t *Tx) Commit() {
	if t.done {
		return
	}
	t.done = true
	t.cache.Invalidate(t.key)
}

// Rollback puts back the snapshot taken by Begin, byte for byte.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	t.cache.mu.Lock()
	defer t.cache.mu.Unlock()
	if t.existed {
		t.cache.entries[t.key] = t.snapshot
	} else {
		delete(t.cache.entries, t.key)
	}
}
