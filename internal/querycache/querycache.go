// Package querycache holds keyed server collections that can be patched
// locally ahead of the server and re-fetched on demand.
package querycache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Fetcher[T any] func(ctx context.Context) (T, error)

type entry[T any] struct {
	value     T
	stale     bool
	fetchedAt time.Time
}

type Cache[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	group   singleflight.Group
	now     func() time.Time
}

func New[T any]() *Cache[T] {
	return &Cache[T]{entries: map[string]*entry[T]{}, now: time.Now}
}

// Get returns the cached value for key, fetching it when missing or stale.
// Concurrent fetches of the same key share one call.
func (c *Cache[T]) Get(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && !e.stale {
		v := e.value
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()
	return c.Revalidate(ctx, key, fetch)
}

// Revalidate fetches key unconditionally and stores the result.
func (c *Cache[T]) Revalidate(ctx context.Context, key string, fetch Fetcher[T]) (T, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Peek returns the cached value without fetching. Stale values are returned.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.value, true
	}
	var zero T
	return zero, false
}

func (c *Cache[T]) Set(key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[T]{value: v, fetchedAt: c.now()}
}

// Mutate replaces the cached value with fn(value). Keys that were never
// loaded are left alone and Mutate reports false.
func (c *Cache[T]) Mutate(key string, fn func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.value = fn(e.value)
	return true
}

// Invalidate marks key stale so the next Get re-fetches it.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.stale = true
	}
}

func (c *Cache[T]) Stale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return !ok || e.stale
}

// FetchedAt reports when key was last stored.
func (c *Cache[T]) FetchedAt(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.fetchedAt, true
	}
	return time.Time{}, false
}
