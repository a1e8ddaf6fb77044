package contracts

import (
	"context"
	"time"
)

// MarketDataProvider supplies quotes, history, fundamentals and the calendar.
// ⭐ SSOT: 시세 데이터 외부 경계
type MarketDataProvider interface {
	LatestTick(ctx context.Context, instrument string) (Tick, error)
	PriceWindow(ctx context.Context, instrument, period string, count int) (PriceWindow, error)
	// Fundamentals returns every disclosed snapshot; an empty slice means none.
	Fundamentals(ctx context.Context, instrument string) ([]FundamentalSnapshot, error)
	TradingCalendar(ctx context.Context, market string, start, end time.Time) ([]time.Time, error)
}

// OrderGateway submits orders and answers account queries.
// ⭐ SSOT: 주문/계좌 외부 경계
type OrderGateway interface {
	Submit(ctx context.Context, instrument string, side Side, volume int64, priceHint float64) (string, error)
	QueryPositions(ctx context.Context) ([]Position, error)
	QueryAccount(ctx context.Context) (Account, error)
	QueryOpenOrders(ctx context.Context) ([]Order, error)
	QueryOrdersToday(ctx context.Context) ([]Order, error)
}

// Daily bar period used by PriceWindow.
const PeriodDaily = "1d"
