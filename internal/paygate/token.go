// Package paygate reconciles incoming payment-provider transfers into
// recharge ledger entries.
package paygate

import (
	"context"
	"sync"
	"time"
)

// TokenSource fetches a fresh API token from the provider.
type TokenSource interface {
	FetchToken(ctx context.Context) (string, error)
}

// TokenCache hands out a cached provider token until it expires or is
// invalidated. Safe for concurrent use. Callers that receive a 401
// call Invalidate and retry once, which forces a refresh.
type TokenCache struct {
	source TokenSource
	ttl    time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

// NewTokenCache creates a cache around source. A zero ttl defaults to
// 30 minutes.
func NewTokenCache(source TokenSource, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &TokenCache{source: source, ttl: ttl, now: time.Now}
}

// Token returns the cached token, fetching a new one when the cache is
// empty or expired.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	token, err := c.source.FetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expires = c.now().Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}
