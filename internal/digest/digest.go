// Package digest caches the SharePoint form digest sent as X-RequestDigest
// on every write request.
package digest

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMargin is subtracted from the server-reported lifetime so that a
// digest is never sent in the last moments before it expires.
const DefaultMargin = 60 * time.Second

// Fetcher retrieves a fresh digest and its lifetime.
type Fetcher func(ctx context.Context) (value string, ttl time.Duration, err error)

// Cache holds the current digest and refreshes it on expiry. Concurrent
// callers that miss share a single fetch.
//
// Thread safety: all methods are safe for concurrent use.
type Cache struct {
	fetch  Fetcher
	margin time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	value   string
	expires time.Time

	group singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithMargin overrides DefaultMargin.
func WithMargin(d time.Duration) Option {
	return func(c *Cache) {
		c.margin = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache around fetch.
func New(fetch Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetch:  fetch,
		margin: DefaultMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a valid digest, fetching one if the cached value is missing
// or expired.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	value, expires := c.value, c.expires
	c.mu.RUnlock()
	if value != "" && c.now().Before(expires) {
		return value, nil
	}

	// The shared fetch must outlive any single caller, so it runs detached
	// from cancellation and each caller waits on its own ctx.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("digest", func() (interface{}, error) {
		value, ttl, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		if value == "" {
			return "", errors.New("digest: empty form digest")
		}

		lifetime := ttl - c.margin
		if lifetime < 0 {
			lifetime = 0
		}
		c.mu.Lock()
		c.value = value
		c.expires = c.now().Add(lifetime)
		c.mu.Unlock()
		return value, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached digest so the next Get fetches a new one.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.value = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}
