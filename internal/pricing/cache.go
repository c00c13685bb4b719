package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const marketPriceKeyPrefix = "market_price:"

// CachedSource memoizes quotes in redis so repeated donation valuations of
// the same product do not re-hit the upstream source.
type CachedSource struct {
	rdb  *redis.Client
	next Source
	ttl  time.Duration
}

func NewCachedSource(rdb *redis.Client, next Source, ttl time.Duration) *CachedSource {
	return &CachedSource{rdb: rdb, next: next, ttl: ttl}
}

func (c *CachedSource) Quote(ctx context.Context, productName string) (decimal.Decimal, error) {
	key := marketPriceKeyPrefix + strings.ToLower(productName)

	if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
	}

	price, err := c.next.Quote(ctx, productName)
	if err != nil {
		return decimal.Zero, err
	}
	// Cache write failures are ignored; the quote is still valid.
	c.rdb.Set(ctx, key, price.String(), c.ttl)
	return price, nil
}
