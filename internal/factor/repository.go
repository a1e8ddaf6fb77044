package factor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/factorloop/internal/contracts"
)

// Repository persists ranking snapshots for audit and the status API.
// ⭐ SSOT: 랭킹 스냅샷 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ranking repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSnapshot replaces the snapshot of evalDate.
func (r *Repository) SaveSnapshot(ctx context.Context, evalDate time.Time, regime contracts.Regime, ranking contracts.Ranking) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM trading.rank_snapshots WHERE eval_date = $1", evalDate); err != nil {
		return fmt.Errorf("failed to delete old snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range ranking {
		batch.Queue(`
			INSERT INTO trading.rank_snapshots (
				eval_date, instrument_id, rank, total_score, fundamental, momentum, risk, regime
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			evalDate, s.InstrumentID, s.Rank, s.Total, s.Fundamental, s.Momentum, s.Risk, string(regime))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return tx.Commit(ctx)
}

// LatestSnapshot loads the most recent ranking at or before asOf.
func (r *Repository) LatestSnapshot(ctx context.Context, asOf time.Time) (contracts.Ranking, contracts.Regime, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT instrument_id, rank, total_score, fundamental, momentum, risk, regime
		FROM trading.rank_snapshots
		WHERE eval_date = (SELECT MAX(eval_date) FROM trading.rank_snapshots WHERE eval_date <= $1)
		ORDER BY rank`, asOf)
	if err != nil {
		return nil, "", fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var (
		ranking contracts.Ranking
		regime  string
	)
	for rows.Next() {
		var s contracts.CompositeScore
		if err := rows.Scan(&s.InstrumentID, &s.Rank, &s.Total, &s.Fundamental, &s.Momentum, &s.Risk, &regime); err != nil {
			return nil, "", fmt.Errorf("failed to scan snapshot: %w", err)
		}
		ranking = append(ranking, s)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	if len(ranking) == 0 {
		return nil, "", fmt.Errorf("no snapshot before %s: %w", asOf.Format(contracts.DateLayout), contracts.ErrDataUnavailable)
	}
	return ranking, contracts.Regime(regime), nil
}
