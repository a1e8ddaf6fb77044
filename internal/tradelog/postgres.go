package tradelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/factorloop/internal/contracts"
)

// Postgres writes trades to trading.trade_log.
// ⭐ SSOT: 체결 기록 DB 저장은 여기서만
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a database sink
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Record(ctx context.Context, rec contracts.TradeRecord) error {
	query := `
		INSERT INTO trading.trade_log (
			instrument_id, executed_at, side, volume, price, cost_basis, realized_pnl, reason, order_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.pool.Exec(ctx, query,
		rec.InstrumentID, rec.Timestamp, string(rec.Side), rec.Volume,
		decimal.NewFromFloat(rec.Price).Round(4).String(),
		decimal.NewFromFloat(rec.CostBasis).Round(4).String(),
		decimal.NewFromFloat(rec.RealizedPnL).Round(2).String(),
		string(rec.Reason), rec.OrderID,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// Since returns trades executed at or after from, oldest first.
func (p *Postgres) Since(ctx context.Context, from time.Time) ([]contracts.TradeRecord, error) {
	query := `
		SELECT instrument_id, executed_at, side, volume, price::float8, cost_basis::float8,
		       realized_pnl::float8, reason, COALESCE(order_id, '')
		FROM trading.trade_log
		WHERE executed_at >= $1
		ORDER BY executed_at, id
	`

	rows, err := p.pool.Query(ctx, query, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []contracts.TradeRecord
	for rows.Next() {
		var (
			rec          contracts.TradeRecord
			side, reason string
		)
		if err := rows.Scan(&rec.InstrumentID, &rec.Timestamp, &side, &rec.Volume,
			&rec.Price, &rec.CostBasis, &rec.RealizedPnL, &reason, &rec.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		rec.Side = contracts.Side(side)
		rec.Reason = contracts.ReasonTag(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}
