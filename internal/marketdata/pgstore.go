// Package marketdata implements MarketDataProvider on Postgres, with an optional Redis cache in front.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/factorloop/internal/contracts"
)

// Store reads market data from the market schema.
// ⭐ SSOT: 시세/재무/거래일 DB 조회는 여기서만
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Postgres-backed provider
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) LatestTick(ctx context.Context, id string) (contracts.Tick, error) {
	query := `
		SELECT last_price, prev_close, open_price, high_price, low_price,
		       bid1, ask1, up_limit, down_limit, updated_at
		FROM market.ticks
		WHERE instrument_id = $1
	`

	var t contracts.Tick
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&t.LastPrice, &t.PrevClose, &t.Open, &t.High, &t.Low,
		&t.Bid1, &t.Ask1, &t.UpLimit, &t.DownLimit, &t.Timestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.Tick{}, fmt.Errorf("tick %s: %w", id, contracts.ErrDataUnavailable)
	}
	if err != nil {
		return contracts.Tick{}, fmt.Errorf("failed to query tick %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) PriceWindow(ctx context.Context, id, period string, count int) (contracts.PriceWindow, error) {
	if period != contracts.PeriodDaily {
		return contracts.PriceWindow{}, fmt.Errorf("period %q not supported: %w", period, contracts.ErrDataUnavailable)
	}

	query := `
		SELECT trade_date, open_price, high_price, low_price, close_price
		FROM (
			SELECT trade_date, open_price, high_price, low_price, close_price
			FROM market.daily_bars
			WHERE instrument_id = $1
			ORDER BY trade_date DESC
			LIMIT $2
		) recent
		ORDER BY trade_date ASC
	`

	rows, err := s.pool.Query(ctx, query, id, count)
	if err != nil {
		return contracts.PriceWindow{}, fmt.Errorf("failed to query bars %s: %w", id, err)
	}
	defer rows.Close()

	window := contracts.PriceWindow{InstrumentID: id}
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return contracts.PriceWindow{}, fmt.Errorf("failed to scan bar: %w", err)
		}
		window.Bars = append(window.Bars, b)
	}
	if err := rows.Err(); err != nil {
		return contracts.PriceWindow{}, fmt.Errorf("failed to iterate bars: %w", err)
	}
	if len(window.Bars) == 0 {
		return window, fmt.Errorf("no bars for %s: %w", id, contracts.ErrDataUnavailable)
	}
	return window, nil
}

func (s *Store) Fundamentals(ctx context.Context, id string) ([]contracts.FundamentalSnapshot, error) {
	query := `
		SELECT announced_at, eps, book_value_ps, roe
		FROM market.fundamentals
		WHERE instrument_id = $1
		ORDER BY announced_at
	`

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query fundamentals %s: %w", id, err)
	}
	defer rows.Close()

	var snaps []contracts.FundamentalSnapshot
	for rows.Next() {
		snap := contracts.FundamentalSnapshot{InstrumentID: id}
		if err := rows.Scan(&snap.AnnouncedAt, &snap.EPS, &snap.BookValuePerShare, &snap.ROE); err != nil {
			return nil, fmt.Errorf("failed to scan fundamentals: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *Store) TradingCalendar(ctx context.Context, market string, start, end time.Time) ([]time.Time, error) {
	query := `
		SELECT trade_date
		FROM market.trading_calendar
		WHERE market = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date
	`

	rows, err := s.pool.Query(ctx, query, market, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading calendar: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan trade date: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// UpsertBars writes daily bars in one batch.
func (s *Store) UpsertBars(ctx context.Context, id string, bars []contracts.Bar) error {
	query := `
		INSERT INTO market.daily_bars (instrument_id, trade_date, open_price, high_price, low_price, close_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (instrument_id, trade_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, id, b.Date, b.Open, b.High, b.Low, b.Close)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert bars for %s: %w", id, err)
	}
	return nil
}

// UpsertCalendar records trading days for market.
func (s *Store) UpsertCalendar(ctx context.Context, market string, days []time.Time) error {
	query := `
		INSERT INTO market.trading_calendar (market, trade_date)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(query, market, d)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to upsert calendar: %w", err)
	}
	return nil
}

// UpsertTick replaces the latest quote of id.
func (s *Store) UpsertTick(ctx context.Context, id string, t contracts.Tick) error {
	query := `
		INSERT INTO market.ticks (
			instrument_id, last_price, prev_close, open_price, high_price, low_price,
			bid1, ask1, up_limit, down_limit, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (instrument_id) DO UPDATE SET
			last_price = EXCLUDED.last_price,
			prev_close = EXCLUDED.prev_close,
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			bid1 = EXCLUDED.bid1,
			ask1 = EXCLUDED.ask1,
			up_limit = EXCLUDED.up_limit,
			down_limit = EXCLUDED.down_limit,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query, id, t.LastPrice, t.PrevClose, t.Open, t.High, t.Low,
		t.Bid1, t.Ask1, t.UpLimit, t.DownLimit, t.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert tick %s: %w", id, err)
	}
	return nil
}
