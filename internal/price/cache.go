package price

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// CachedOracle wraps an Oracle with a Redis cache and an in-process fallback
// so a flapping upstream does not turn every quote into a round trip. A cache
// miss plus upstream failure still surfaces ErrPriceUnavailable; cached
// entries are never served past their TTL.
type CachedOracle struct {
	upstream Oracle
	rdb      *redis.Client
	ttl      time.Duration

	mu    sync.RWMutex
	local map[string]localEntry

	// observability hooks, optional
	OnHit  func()
	OnMiss func()
}

type localEntry struct {
	price     decimal.Decimal
	expiresAt time.Time
}

// NewCachedOracle builds a caching layer over upstream. rdb may be nil, in
// which case only the in-process cache is used.
func NewCachedOracle(upstream Oracle, rdb *redis.Client, ttl time.Duration) *CachedOracle {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedOracle{
		upstream: upstream,
		rdb:      rdb,
		ttl:      ttl,
		local:    make(map[string]localEntry),
	}
}

func cacheKey(priceID string) string {
	return "price:usd:" + priceID
}

func (c *CachedOracle) CurrentPrice(ctx context.Context, priceID string) (decimal.Decimal, error) {
	if p, ok := c.fromLocal(priceID); ok {
		c.hit()
		return p, nil
	}

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, cacheKey(priceID)).Result()
		if err == nil {
			if p, perr := decimal.NewFromString(raw); perr == nil && p.IsPositive() {
				c.storeLocal(priceID, p)
				c.hit()
				return p, nil
			}
		}
	}

	c.miss()
	p, err := c.upstream.CurrentPrice(ctx, priceID)
	if err != nil {
		return decimal.Zero, err
	}

	c.storeLocal(priceID, p)
	if c.rdb != nil {
		// Best effort: a cache write failure must not fail the quote.
		if err := c.rdb.Set(ctx, cacheKey(priceID), p.String(), c.ttl).Err(); err != nil {
			_ = err
		}
	}
	return p, nil
}

func (c *CachedOracle) fromLocal(priceID string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.local[priceID]
	if !ok || time.Now().After(entry.expiresAt) {
		return decimal.Zero, false
	}
	return entry.price, true
}

func (c *CachedOracle) storeLocal(priceID string, p decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[priceID] = localEntry{price: p, expiresAt: time.Now().Add(c.ttl)}
}

func (c *CachedOracle) hit() {
	if c.OnHit != nil {
		c.OnHit()
	}
}

func (c *CachedOracle) miss() {
	if c.OnMiss != nil {
		c.OnMiss()
	}
}

// StaticOracle serves fixed prices. Testing only.
type StaticOracle struct {
	Prices map[string]decimal.Decimal
}

func (s StaticOracle) CurrentPrice(_ context.Context, priceID string) (decimal.Decimal, error) {
	p, ok := s.Prices[priceID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no static quote for %s", ErrPriceUnavailable, priceID)
	}
	return p, nil
}
