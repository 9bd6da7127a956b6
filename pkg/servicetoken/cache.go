package servicetoken

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Skotchmaster/student_records/pkg/metrics"
)

const (
	DefaultSkew = 30 * time.Second
	// FetchTimeout bounds one shared exchange, which is detached from the
	// caller that started it.
	FetchTimeout = 10 * time.Second
)

type Source interface {
	GetServiceToken(ctx context.Context, audience string) (*Token, error)
}

// Cache keeps one token per audience until Skew before it expires.
// Concurrent misses for the same audience share a single exchange.
type Cache struct {
	source  Source
	skew    time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu     sync.Mutex
	tokens map[string]*Token
	group  singleflight.Group
}

func NewCache(source Source, skew time.Duration, m *metrics.Metrics) *Cache {
	if skew < 0 {
		skew = DefaultSkew
	}
	return &Cache{
		source:  source,
		skew:    skew,
		now:     time.Now,
		metrics: m,
		tokens:  make(map[string]*Token),
	}
}

func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

func (c *Cache) lookup(audience string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[audience]
	if !ok {
		return "", false
	}
	if !c.now().Before(tok.ExpiresAt.Add(-c.skew)) {
		delete(c.tokens, audience)
		return "", false
	}
	return tok.AccessToken, true
}

func (c *Cache) Token(ctx context.Context, audience string) (string, error) {
	if tok, ok := c.lookup(audience); ok {
		c.metrics.ServiceToken("hit")
		return tok, nil
	}

	ch := c.group.DoChan(audience, func() (any, error) {
		if tok, ok := c.lookup(audience); ok {
			return tok, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), FetchTimeout)
		defer cancel()
		fetched, err := c.source.GetServiceToken(fetchCtx, audience)
		if err != nil {
			c.metrics.ServiceToken("failed")
			return "", err
		}
		c.metrics.ServiceToken("fetched")

		c.mu.Lock()
		c.tokens[audience] = fetched
		c.mu.Unlock()
		return fetched.AccessToken, nil
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

// Invalidate drops the cached token so the next call fetches a new one.
func (c *Cache) Invalidate(audience string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, audience)
}
