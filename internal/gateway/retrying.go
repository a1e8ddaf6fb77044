// Package gateway decorates market data and order gateways with retry and rate
// limiting, and provides the paper gateway used in simulation mode.
package gateway

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/pkg/logger"
	"github.com/wonny/factorloop/pkg/retry"
)

// permanent stops retries for errors that another attempt cannot fix.
func permanent(err error) error {
	if errors.Is(err, contracts.ErrDataUnavailable) || errors.Is(err, contracts.ErrInvalidQuote) {
		return retry.Permanent(err)
	}
	return err
}

// RetryingProvider wraps every MarketDataProvider call in a bounded retry.
type RetryingProvider struct {
	next   contracts.MarketDataProvider
	runner *retry.Runner
}

// NewRetryingProvider creates a retrying provider
func NewRetryingProvider(next contracts.MarketDataProvider, policy retry.Policy, limiter *rate.Limiter, log *logger.Logger) *RetryingProvider {
	return &RetryingProvider{next: next, runner: retry.New(policy, limiter, log.WithComponent("marketdata"))}
}

func (p *RetryingProvider) LatestTick(ctx context.Context, id string) (contracts.Tick, error) {
	return retry.Value(ctx, p.runner, "latest_tick "+id, func(ctx context.Context) (contracts.Tick, error) {
		t, err := p.next.LatestTick(ctx, id)
		return t, permanent(err)
	})
}

func (p *RetryingProvider) PriceWindow(ctx context.Context, id, period string, count int) (contracts.PriceWindow, error) {
	return retry.Value(ctx, p.runner, "price_window "+id, func(ctx context.Context) (contracts.PriceWindow, error) {
		w, err := p.next.PriceWindow(ctx, id, period, count)
		return w, permanent(err)
	})
}

func (p *RetryingProvider) Fundamentals(ctx context.Context, id string) ([]contracts.FundamentalSnapshot, error) {
	return retry.Value(ctx, p.runner, "fundamentals "+id, func(ctx context.Context) ([]contracts.FundamentalSnapshot, error) {
		s, err := p.next.Fundamentals(ctx, id)
		return s, permanent(err)
	})
}

func (p *RetryingProvider) TradingCalendar(ctx context.Context, market string, start, end time.Time) ([]time.Time, error) {
	return retry.Value(ctx, p.runner, "trading_calendar", func(ctx context.Context) ([]time.Time, error) {
		c, err := p.next.TradingCalendar(ctx, market, start, end)
		return c, permanent(err)
	})
}

// RetryingGateway retries queries. Submit gets a single rate-limited attempt so
// a timed-out order is never sent twice.
type RetryingGateway struct {
	next   contracts.OrderGateway
	query  *retry.Runner
	submit *retry.Runner
}

// NewRetryingGateway creates a retrying order gateway
func NewRetryingGateway(next contracts.OrderGateway, policy retry.Policy, limiter *rate.Limiter, log *logger.Logger) *RetryingGateway {
	log = log.WithComponent("gateway")
	once := policy
	once.MaxRetries = 0
	return &RetryingGateway{
		next:   next,
		query:  retry.New(policy, limiter, log),
		submit: retry.New(once, limiter, log),
	}
}

func (g *RetryingGateway) Submit(ctx context.Context, id string, side contracts.Side, volume int64, priceHint float64) (string, error) {
	return retry.Value(ctx, g.submit, "submit "+id, func(ctx context.Context) (string, error) {
		return g.next.Submit(ctx, id, side, volume, priceHint)
	})
}

func (g *RetryingGateway) QueryPositions(ctx context.Context) ([]contracts.Position, error) {
	return retry.Value(ctx, g.query, "query_positions", g.next.QueryPositions)
}

func (g *RetryingGateway) QueryAccount(ctx context.Context) (contracts.Account, error) {
	return retry.Value(ctx, g.query, "query_account", g.next.QueryAccount)
}

func (g *RetryingGateway) QueryOpenOrders(ctx context.Context) ([]contracts.Order, error) {
	return retry.Value(ctx, g.query, "query_open_orders", g.next.QueryOpenOrders)
}

func (g *RetryingGateway) QueryOrdersToday(ctx context.Context) ([]contracts.Order, error) {
	return retry.Value(ctx, g.query, "query_orders_today", g.next.QueryOrdersToday)
}
