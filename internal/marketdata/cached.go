package marketdata

import (
	"context"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/pkg/logger"
	"github.com/wonny/factorloop/pkg/redis"
)

// Cached serves price windows, fundamentals and calendars from Redis before
// asking the next provider. Ticks are never cached. Cache failures degrade to
// a direct read.
type Cached struct {
	next   contracts.MarketDataProvider
	cache  *redis.Cache
	loc    *time.Location
	now    func() time.Time
	logger *logger.Logger
}

// NewCached creates a cache-through provider. Window keys roll over with the date in loc.
func NewCached(next contracts.MarketDataProvider, cache *redis.Cache, loc *time.Location, log *logger.Logger) *Cached {
	if loc == nil {
		loc = time.UTC
	}
	return &Cached{next: next, cache: cache, loc: loc, now: time.Now, logger: log.WithComponent("marketdata")}
}

func (c *Cached) LatestTick(ctx context.Context, id string) (contracts.Tick, error) {
	return c.next.LatestTick(ctx, id)
}

func (c *Cached) PriceWindow(ctx context.Context, id, period string, count int) (contracts.PriceWindow, error) {
	key := redis.WindowKey(id, period, count, c.now().In(c.loc).Format(contracts.DateLayout))
	return through(ctx, c, key, redis.TTLLong, func(ctx context.Context) (contracts.PriceWindow, error) {
		return c.next.PriceWindow(ctx, id, period, count)
	})
}

func (c *Cached) Fundamentals(ctx context.Context, id string) ([]contracts.FundamentalSnapshot, error) {
	return through(ctx, c, redis.FundamentalsKey(id), redis.TTLLong, func(ctx context.Context) ([]contracts.FundamentalSnapshot, error) {
		return c.next.Fundamentals(ctx, id)
	})
}

func (c *Cached) TradingCalendar(ctx context.Context, market string, start, end time.Time) ([]time.Time, error) {
	key := redis.CalendarKey(market, start.Format(contracts.DateLayout), end.Format(contracts.DateLayout))
	return through(ctx, c, key, redis.TTLDaily, func(ctx context.Context) ([]time.Time, error) {
		return c.next.TradingCalendar(ctx, market, start, end)
	})
}

func through[T any](ctx context.Context, c *Cached, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	if hit {
		return cached, nil
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if err := c.cache.Set(ctx, key, v, ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
	return v, nil
}
