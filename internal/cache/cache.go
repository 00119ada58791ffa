// Package cache is a timestamped key/value cache with lazy, read-time expiry.
//
// Entries are written with their wall-clock write time. [Cache.Get] deletes
// and reports absent any entry older than the cache's lifespan; nothing is
// evicted in the background and there is no size bound.
package cache

import (
	"fmt"
	"time"

	"github.com/desertthunder/gamekeep/internal/kv"
)

// NoExpiry is the lifespan for caches whose entries never go stale.
const NoExpiry time.Duration = 0

type entry[V any] struct {
	Value     V         `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

// Cache stores values of type V in one kv namespace.
type Cache[V any] struct {
	name     string
	bucket   kv.Bucket
	lifespan time.Duration
	now      func() time.Time
}

// Option configures a [Cache].
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, letting tests simulate elapsed time.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache named name over bucket. A lifespan of [NoExpiry] keeps entries forever.
func New[V any](name string, bucket kv.Bucket, lifespan time.Duration, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{name: name, bucket: bucket, lifespan: lifespan, now: o.now}
}

func (c *Cache[V]) Name() string { return c.name }

// Lifespan returns the configured lifespan; zero means no expiry.
func (c *Cache[V]) Lifespan() time.Duration { return c.lifespan }

// Get returns the value at key. A stale entry is deleted and reported absent.
func (c *Cache[V]) Get(key string) (V, bool, error) {
	var zero V
	var e entry[V]

	found, err := c.bucket.Get(key, &e)
	if err != nil {
		return zero, false, fmt.Errorf("cache %s: %w", c.name, err)
	}
	if !found {
		return zero, false, nil
	}

	if c.lifespan > NoExpiry && c.now().Sub(e.WrittenAt) > c.lifespan {
		if err := c.bucket.Delete(key); err != nil {
			return zero, false, fmt.Errorf("cache %s: failed to evict %s: %w", c.name, key, err)
		}
		return zero, false, nil
	}
	return e.Value, true, nil
}

// Set records value and the current time under key.
func (c *Cache[V]) Set(key string, value V) error {
	if err := c.bucket.Set(key, entry[V]{Value: value, WrittenAt: c.now()}); err != nil {
		return fmt.Errorf("cache %s: %w", c.name, err)
	}
	return nil
}

func (c *Cache[V]) Delete(key string) error {
	return c.bucket.Delete(key)
}

// Clear drops every entry in the cache.
func (c *Cache[V]) Clear() error {
	return c.bucket.Clear()
}

// GetOrLoad returns the cached value or calls load, caching its result on success.
// An unreadable entry is an error, not a miss.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (V, error) {
	v, ok, err := c.Get(key)
	if err != nil {
		return v, err
	}
	if ok {
		return v, nil
	}

	v, err = load()
	if err != nil {
		return v, err
	}
	if err := c.Set(key, v); err != nil {
		return v, err
	}
	return v, nil
}
