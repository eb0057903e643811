package auth

import (
	"context"
	"sync"
	"time"
)

// FetchFunc obtains a fresh upstream credential. It is called at most once
// per TTL window regardless of how many sessions are starting concurrently.
type FetchFunc func(ctx context.Context) (string, error)

// TokenCache is the one process-wide shared resource in the gateway: a
// short-lived credential for the upstream realtime service, refreshed under
// mutual exclusion with TTL-based invalidation.
type TokenCache struct {
	fetch FetchFunc
	ttl   time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time // test hook
}

// NewTokenCache creates a cache around fetch with the given TTL.
func NewTokenCache(fetch FetchFunc, ttl time.Duration) *TokenCache {
	return &TokenCache{
		fetch: fetch,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Static returns a cache that always yields the given credential. Used when
// the upstream accepts a long-lived API key directly.
func Static(token string) *TokenCache {
	return NewTokenCache(func(context.Context) (string, error) {
		return token, nil
	}, 24*time.Hour)
}

// Token returns the cached credential, refreshing it if the TTL has lapsed.
// Concurrent callers during a refresh block until the single fetch resolves.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	token, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expires = c.now().Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached credential so the next Token call refetches.
// Called when the upstream rejects the current credential.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expires = time.Time{}
	c.mu.Unlock()
}
