package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/execution"
	"github.com/wonny/factorloop/internal/factor"
	"github.com/wonny/factorloop/internal/gateway"
	"github.com/wonny/factorloop/internal/marketdata"
	"github.com/wonny/factorloop/internal/metrics"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/runner"
	"github.com/wonny/factorloop/internal/state"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/internal/tradelog"
	"github.com/wonny/factorloop/pkg/config"
	"github.com/wonny/factorloop/pkg/database"
	"github.com/wonny/factorloop/pkg/logger"
	"github.com/wonny/factorloop/pkg/redis"
	"github.com/wonny/factorloop/pkg/retry"
)

// errNoBroker is returned in live mode: only the paper gateway ships with this binary.
var errNoBroker = errors.New("TRADING_MODE=live requires a broker OrderGateway; none is configured")

// base is what every command needs: process config, strategy and logger.
type base struct {
	cfg      *config.Config
	strategy *strategyconfig.Config
	log      *logger.Logger
}

func loadBase() (*base, error) {
	return loadBaseWith(logger.New)
}

// loadBaseTo is loadBase with logs written to w (stderr when stdout carries data).
func loadBaseTo(w io.Writer) (*base, error) {
	return loadBaseWith(func(cfg *config.Config) *logger.Logger {
		return logger.NewWithWriter(cfg, w)
	})
}

func loadBaseWith(newLogger func(*config.Config) *logger.Logger) (*base, error) {
	// 1. 프로세스 설정
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := newLogger(cfg)

	// 2. 전략 설정
	path := strategyFile
	if path == "" {
		path = cfg.StrategyFile
	}
	strategy, err := strategyconfig.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}

	hash, _ := strategyconfig.Hash(strategy)
	log.WithFields(map[string]interface{}{
		"strategy": strategy.Meta.StrategyID,
		"version":  strategy.Meta.Version,
		"hash":     hash,
		"file":     path,
		"mode":     cfg.TradingMode,
	}).Info("Strategy loaded")
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	return &base{cfg: cfg, strategy: strategy, log: log}, nil
}

// app is the fully wired process.
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	*base
	db        *database.DB
	redis     *redis.Client
	bars      *marketdata.Store
	provider  contracts.MarketDataProvider
	gateway   contracts.OrderGateway
	positions position.Source
	ledger    *position.Simulated
	state     *state.Store
	executor  *execution.Executor
	metrics   *metrics.Metrics
	runner    *runner.Runner
}

func newApp(ctx context.Context) (*app, error) {
	b, err := loadBase()
	if err != nil {
		return nil, err
	}
	a := &app{base: b}
	loc := b.strategy.Location()

	// 1. DB + 스키마
	a.db, err = database.New(b.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := a.db.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	// 2. Redis 캐시 (비활성 시 no-op)
	a.redis, err = redis.New(b.cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// 3. 시세 제공자: PG → 캐시 → 재시도/레이트리밋
	policy := retry.PolicyFromConfig(b.cfg.Gateway)
	limiter := retry.NewLimiter(b.cfg.Gateway)
	a.bars = marketdata.NewStore(a.db.Pool)
	cached := marketdata.NewCached(a.bars, redis.NewCache(a.redis, "factorloop"), loc, b.log)
	a.provider = gateway.NewRetryingProvider(cached, policy, limiter, b.log)

	// 4. 상태 저장소 + 포지션/주문 게이트웨이
	a.state, err = state.NewStore(b.cfg.StateDir, b.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !b.cfg.IsSimulation() {
		a.Close()
		return nil, errNoBroker
	}
	ledger, err := a.state.LoadLedger(b.strategy.Rebalance.InitialCash)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	a.ledger = position.NewSimulated(ledger, a.state.LedgerFile(), b.log)
	a.positions = a.ledger
	a.gateway = gateway.NewRetryingGateway(gateway.NewPaper(a.ledger, loc), policy, limiter, b.log)

	// 5. 트레이드 로그: CSV + PG
	csvSink, err := tradelog.NewCSV(b.cfg.TradeLogPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("trade log: %w", err)
	}
	sink := tradelog.Multi{csvSink, tradelog.NewPostgres(a.db.Pool)}

	// 6. 실행기 + 러너
	a.executor = execution.NewExecutor(a.gateway, a.positions, sink, b.strategy.Costs, b.log)
	if b.cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}
	a.runner, err = runner.New(runner.Deps{
		Config:    b.strategy,
		Provider:  a.provider,
		Gateway:   a.gateway,
		Positions: a.positions,
		Store:     a.state,
		Executor:  a.executor,
		Snapshots: factor.NewRepository(a.db.Pool),
		Metrics:   a.metrics,
	}, b.log)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the database and redis connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
