// Package cache provides single-value caches in front of the persistent
// store. Each data type gets one cache under one fixed name; readers hit
// the cached value, misses fall through to a loader that queries the
// store. Refresh services invalidate by name through a Registry, which
// rebuilds asynchronously on a worker so readers never wait on a reload
// they didn't cause.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arunderwood/nextskip-sub005/internal/logging"
)

// Cache holds one value of type T under one fixed name. The TTL is a
// safety net only: it is set looser than the data's refresh interval, so
// under normal operation values are replaced by explicit rebuilds and
// the TTL never fires.
type Cache[T any] struct {
	name   string
	ttl    time.Duration
	loader func(ctx context.Context) (T, error)

	mu       sync.RWMutex
	value    T
	loadedAt time.Time
	hasValue bool

	group singleflight.Group

	now func() time.Time // for tests
}

// New creates a cache. The loader queries the persistent store and is
// invoked on cold reads, expired reads, and explicit rebuilds.
func New[T any](name string, ttl time.Duration, loader func(ctx context.Context) (T, error)) *Cache[T] {
	return &Cache[T]{
		name:   name,
		ttl:    ttl,
		loader: loader,
		now:    time.Now,
	}
}

// Name returns the cache's registry name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Get returns the cached value and the time it was loaded. A cold or
// expired cache loads through, with concurrent misses coalesced into one
// loader call. If the loader fails but an expired value is still held,
// that value is served; the error surfaces only when there is nothing to
// serve at all.
func (c *Cache[T]) Get(ctx context.Context) (T, time.Time, error) {
	c.mu.RLock()
	if c.hasValue && c.now().Sub(c.loadedAt) <= c.ttl {
		value, loadedAt := c.value, c.loadedAt
		c.mu.RUnlock()
		return value, loadedAt, nil
	}
	c.mu.RUnlock()

	_, err, _ := c.group.Do(c.name, func() (interface{}, error) {
		// Another waiter may have reloaded while we queued.
		c.mu.RLock()
		fresh := c.hasValue && c.now().Sub(c.loadedAt) <= c.ttl
		c.mu.RUnlock()
		if fresh {
			return nil, nil
		}

		value, err := c.loader(ctx)
		if err != nil {
			return nil, err
		}
		c.swap(value)
		return nil, nil
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	if err != nil {
		if c.hasValue {
			logging.Warn("Cache reload failed, serving stale value",
				"cache", c.name,
				"age", c.now().Sub(c.loadedAt).Round(time.Second),
				"error", err)
			return c.value, c.loadedAt, nil
		}
		var zero T
		return zero, time.Time{}, err
	}
	return c.value, c.loadedAt, nil
}

// swap atomically replaces the cached value.
func (c *Cache[T]) swap(value T) {
	c.mu.Lock()
	c.value = value
	c.loadedAt = c.now()
	c.hasValue = true
	c.mu.Unlock()
}

// rebuild reloads the value in place. On failure the previous value
// stays; readers keep seeing the old data until a later rebuild or the
// TTL forces a load-through.
func (c *Cache[T]) rebuild(ctx context.Context) {
	value, err := c.loader(ctx)
	if err != nil {
		logging.Warn("Cache rebuild failed, keeping previous value",
			"cache", c.name,
			"error", err)
		return
	}
	c.swap(value)
	logging.Debug("Cache rebuilt", "cache", c.name)
}
