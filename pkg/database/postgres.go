package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wonny/factorloop/pkg/config"
)

// DB wraps the pgxpool.Pool
// ⭐ SSOT: DB 연결은 이 패키지에서만 생성
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool and verifies it with a ping.
func New(cfg *config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database is accessible
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// HealthCheck returns pool health for the status endpoint.
func (db *DB) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{Timestamp: time.Now()}

	start := time.Now()
	if err := db.Pool.Ping(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)
	status.Stats = db.Stats()
	status.Healthy = true
	return status, nil
}

// HealthStatus represents the health status of the database
type HealthStatus struct {
	Healthy      bool          `json:"healthy"`
	Timestamp    time.Time     `json:"timestamp"`
	ResponseTime time.Duration `json:"response_time"`
	Error        string        `json:"error,omitempty"`
	Stats        PoolStats     `json:"stats"`
}

// PoolStats is the subset of pgxpool statistics exported on /status.
type PoolStats struct {
	AcquireCount  int64 `json:"acquire_count"`
	AcquiredConns int32 `json:"acquired_conns"`
	IdleConns     int32 `json:"idle_conns"`
	MaxConns      int32 `json:"max_conns"`
	TotalConns    int32 `json:"total_conns"`
}

// Stats returns the current pool statistics
func (db *DB) Stats() PoolStats {
	stats := db.Pool.Stat()
	return PoolStats{
		AcquireCount:  stats.AcquireCount(),
		AcquiredConns: stats.AcquiredConns(),
		IdleConns:     stats.IdleConns(),
		MaxConns:      stats.MaxConns(),
		TotalConns:    stats.TotalConns(),
	}
}

// schema is applied by Migrate. Market data tables are filled by an external loader.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS market`,
	`CREATE SCHEMA IF NOT EXISTS trading`,
	`CREATE TABLE IF NOT EXISTS market.daily_bars (
		instrument_id TEXT NOT NULL,
		trade_date    DATE NOT NULL,
		open_price    DOUBLE PRECISION NOT NULL,
		high_price    DOUBLE PRECISION NOT NULL,
		low_price     DOUBLE PRECISION NOT NULL,
		close_price   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (instrument_id, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS market.fundamentals (
		instrument_id  TEXT NOT NULL,
		announced_at   TIMESTAMPTZ NOT NULL,
		eps            DOUBLE PRECISION NOT NULL,
		book_value_ps  DOUBLE PRECISION NOT NULL,
		roe            DOUBLE PRECISION,
		PRIMARY KEY (instrument_id, announced_at)
	)`,
	`CREATE TABLE IF NOT EXISTS market.ticks (
		instrument_id TEXT PRIMARY KEY,
		last_price    DOUBLE PRECISION NOT NULL,
		prev_close    DOUBLE PRECISION NOT NULL,
		open_price    DOUBLE PRECISION NOT NULL,
		high_price    DOUBLE PRECISION NOT NULL,
		low_price     DOUBLE PRECISION NOT NULL,
		bid1          DOUBLE PRECISION NOT NULL DEFAULT 0,
		ask1          DOUBLE PRECISION NOT NULL DEFAULT 0,
		up_limit      DOUBLE PRECISION NOT NULL DEFAULT 0,
		down_limit    DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS market.trading_calendar (
		market     TEXT NOT NULL,
		trade_date DATE NOT NULL,
		PRIMARY KEY (market, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS trading.trade_log (
		id            BIGSERIAL PRIMARY KEY,
		instrument_id TEXT NOT NULL,
		executed_at   TIMESTAMPTZ NOT NULL,
		side          TEXT NOT NULL,
		volume        BIGINT NOT NULL,
		price         NUMERIC(18,4) NOT NULL,
		cost_basis    NUMERIC(18,4) NOT NULL,
		realized_pnl  NUMERIC(18,2) NOT NULL,
		reason        TEXT NOT NULL,
		order_id      TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS trading.rank_snapshots (
		eval_date     DATE NOT NULL,
		instrument_id TEXT NOT NULL,
		rank          INT NOT NULL,
		total_score   DOUBLE PRECISION NOT NULL,
		fundamental   DOUBLE PRECISION NOT NULL,
		momentum      DOUBLE PRECISION NOT NULL,
		risk          DOUBLE PRECISION NOT NULL,
		regime        TEXT NOT NULL,
		PRIMARY KEY (eval_date, instrument_id)
	)`,
}

// Migrate creates the tables this service reads and writes.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
