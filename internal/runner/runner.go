// Package runner drives the polling loop: day rollover, regime, intraday
// checks, execution and persistence.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/execution"
	"github.com/wonny/factorloop/internal/factor"
	"github.com/wonny/factorloop/internal/intraday"
	"github.com/wonny/factorloop/internal/metrics"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/rebalance"
	"github.com/wonny/factorloop/internal/regime"
	"github.com/wonny/factorloop/internal/state"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

// SnapshotSaver stores ranking snapshots (factor.Repository).
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, evalDate time.Time, regime contracts.Regime, ranking contracts.Ranking) error
}

// Deps wires the runner. Snapshots and Metrics are optional.
type Deps struct {
	Config    *strategyconfig.Config
	Provider  contracts.MarketDataProvider
	Gateway   contracts.OrderGateway
	Positions position.Source
	Store     *state.Store
	Executor  *execution.Executor
	Snapshots SnapshotSaver
	Metrics   *metrics.Metrics
}

// Runner owns RuntimeState and serializes every operation on it.
// ⭐ SSOT: 루프 상태 변경은 Runner 메서드를 통해서만
type Runner struct {
	cfg       *strategyconfig.Config
	provider  contracts.MarketDataProvider
	gateway   contracts.OrderGateway
	positions position.Source
	store     *state.Store
	executor  *execution.Executor
	snapshots SnapshotSaver
	metrics   *metrics.Metrics

	factor    *factor.Engine
	regime    *regime.Classifier
	intraday  *intraday.Engine
	rebalance *rebalance.Engine

	logger *logger.Logger
	now    func() time.Time

	opMu sync.Mutex
	rt   RuntimeState

	statusMu    sync.RWMutex
	last        Status
	subscribers []func(Status)
}

// New creates a runner and restores the managed set and session counter.
func New(deps Deps, log *logger.Logger) (*Runner, error) {
	if deps.Config == nil || deps.Provider == nil || deps.Gateway == nil || deps.Positions == nil || deps.Store == nil || deps.Executor == nil {
		return nil, errors.New("runner: missing dependency")
	}

	managed, err := deps.Store.LoadManaged()
	if err != nil {
		return nil, fmt.Errorf("load managed set: %w", err)
	}
	session, err := deps.Store.LoadSession()
	if err != nil {
		return nil, fmt.Errorf("load session counter: %w", err)
	}

	if deps.Metrics != nil {
		deps.Executor.SetObserver(deps.Metrics)
	}

	r := &Runner{
		cfg:       deps.Config,
		provider:  deps.Provider,
		gateway:   deps.Gateway,
		positions: deps.Positions,
		store:     deps.Store,
		executor:  deps.Executor,
		snapshots: deps.Snapshots,
		metrics:   deps.Metrics,
		factor:    factor.NewEngine(deps.Config.Factor, log),
		regime:    regime.NewClassifier(deps.Config, log),
		intraday:  intraday.NewEngine(deps.Config, deps.Provider, log),
		rebalance: rebalance.NewEngine(deps.Config, deps.Positions, deps.Executor, log),
		logger:    log.WithComponent("runner"),
		now:       time.Now,
		rt: RuntimeState{
			Session: session,
			Managed: managed,
			Regime:  contracts.RegimeState{Regime: contracts.RegimeChoppy, PositionMultiplier: 1},
		},
	}
	return r, nil
}

// SetClock overrides the time source used by Run.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// Subscribe registers fn to receive every cycle status.
func (r *Runner) Subscribe(fn func(Status)) {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Status returns the last cycle status
func (r *Runner) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.last
}

// Ranking returns the last computed ranking and the regime it was scored under.
func (r *Runner) Ranking() (contracts.Ranking, contracts.RegimeState) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return append(contracts.Ranking(nil), r.rt.Ranking...), r.rt.Regime
}

// Run polls every loop interval until ctx is cancelled. Cycles outside the
// trading windows are skipped.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.cfg.Loop.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.WithFields(map[string]interface{}{
		"interval":  interval.String(),
		"benchmark": r.cfg.Meta.Benchmark,
		"strategy":  r.cfg.Meta.StrategyID,
	}).Info("Polling loop started")

	for {
		now := r.now()
		if r.cfg.InSession(now) {
			if _, err := r.Cycle(ctx, now); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WithError(err).Error("Cycle failed")
			}
		}

		select {
		case <-ctx.Done():
			r.logger.Info("Polling loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ensureDay performs the rollover the first time a trading date is seen.
// Caller holds opMu.
func (r *Runner) ensureDay(ctx context.Context, now time.Time) (bool, error) {
	date, trading := r.tradingDate(ctx, now)
	if !trading {
		return false, nil
	}
	if r.rt.Date == date && r.rt.Daily != nil {
		return true, nil
	}

	daily, resumed, err := r.store.LoadDaily(date)
	if err != nil {
		r.logger.WithError(err).WithField("date", date).Warn("Daily state unreadable, rebuilding from today's orders")
	}

	held, err := position.HeldSet(ctx, r.positions)
	if err != nil {
		return false, fmt.Errorf("rollover holdings: %w", err)
	}

	// 1. 일일 리스크 상태: 같은 날 재시작이면 복원, 아니면 초기화
	var removed []string
	if resumed {
		removed = r.rt.Managed.Reconcile(held)
		r.rt.Day = intraday.NewDayState(date)
	} else {
		r.rt.Day, removed = intraday.Rollover(date, daily, r.rt.Managed, held)
	}
	r.rt.Daily = daily
	r.rt.Date = date
	if !resumed {
		r.recoverDaily(ctx)
	}

	// 2. 세션 카운터
	if r.rt.Session.Advance(date) {
		if err := r.store.SaveSession(r.rt.Session); err != nil {
			r.logger.WithError(err).Warn("Failed to save session counter")
		}
	}

	r.persist()

	r.logger.WithFields(map[string]interface{}{
		"date":            date,
		"session":         r.rt.Session.Count,
		"resumed":         resumed,
		"managed":         r.rt.Managed.Len(),
		"managed_dropped": removed,
		"spent":           daily.CumulativeBuyAmount,
		"buys_suspended":  r.rt.BuysSuspended,
	}).Info("Trading day started")
	return true, nil
}

// persist saves the daily state and managed set. Failures keep the
// in-memory state authoritative.
func (r *Runner) persist() {
	if err := r.store.SaveDaily(r.rt.Daily); err != nil {
		r.logger.WithError(err).Warn("Failed to save daily state")
	}
	if err := r.store.SaveManaged(r.rt.Managed); err != nil {
		r.logger.WithError(err).Warn("Failed to save managed set")
	}
}

// quotes fetches the latest tick for ids; failures are skipped.
func (r *Runner) quotes(ctx context.Context, ids []string) map[string]contracts.Tick {
	out := make(map[string]contracts.Tick, len(ids))
	marker, _ := r.positions.(position.Marker)
	for _, id := range ids {
		tick, err := r.provider.LatestTick(ctx, id)
		if err != nil {
			r.logger.WithInstrument(id).WithError(err).Debug("Quote unavailable")
			continue
		}
		out[id] = tick
		if marker != nil && tick.LastPrice > 0 {
			marker.Mark(id, tick.LastPrice)
		}
	}
	return out
}

// tracked is the configured watch set plus the current watch-count ranks.
func (r *Runner) tracked() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{r.cfg.WatchSet(), r.rt.Ranking.Top(r.cfg.Rebalance.WatchCount)} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (r *Runner) positionMap(ctx context.Context) (map[string]contracts.Position, error) {
	list, err := r.positions.Positions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]contracts.Position, len(list))
	for _, p := range list {
		out[p.InstrumentID] = p
	}
	return out, nil
}

// Cycle runs one polling iteration at now.
func (r *Runner) Cycle(ctx context.Context, now time.Time) (Status, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	started := time.Now()
	st, err := r.cycle(ctx, now)
	if err != nil {
		st.Error = err.Error()
	}
	r.publish(st, time.Since(started), err)
	return st, err
}

func (r *Runner) cycle(ctx context.Context, now time.Time) (Status, error) {
	st := Status{Time: now}

	// 1. 거래일 확인 및 일자 전환
	trading, err := r.ensureDay(ctx, now)
	if err != nil {
		return st, err
	}
	st.Date = r.rt.Date
	st.Session = r.rt.Session.Count
	st.Regime = r.rt.Regime.Regime
	if !trading {
		return st, nil
	}
	st.Trading = true

	if r.rt.BuysSuspended {
		r.recoverDaily(ctx)
	}
	st.BuysSuspended = r.rt.BuysSuspended

	// 2. 시장 국면
	r.rt.Regime = r.regime.Detect(ctx, r.provider, r.cfg.Meta.Benchmark)
	st.Regime = r.rt.Regime.Regime
	st.RegimeFallback = r.rt.Regime.Fallback

	// 3. 벤치마크 서킷브레이커
	var bench *contracts.Tick
	if t, err := r.provider.LatestTick(ctx, r.cfg.Meta.Benchmark); err == nil {
		bench = &t
	} else {
		r.logger.WithError(err).Debug("Benchmark quote unavailable")
	}
	st.Breaker, st.BenchmarkReturn = r.intraday.BreakerTripped(bench)

	// 4. 보유/계좌/미체결
	positions, err := r.positionMap(ctx)
	if err != nil {
		return st, fmt.Errorf("positions: %w", err)
	}
	open, err := r.gateway.QueryOpenOrders(ctx)
	if err != nil {
		r.logger.WithError(err).Warn("Open orders unavailable")
	}

	tracked := r.tracked()
	quotes := r.quotes(ctx, intraday.Monitored(positions, tracked))

	acct, err := r.positions.CashAndTotalAsset(ctx)
	if err != nil {
		return st, fmt.Errorf("account: %w", err)
	}

	// 5. 장중 규칙 평가
	decisions := r.intraday.Evaluate(ctx, intraday.CycleInput{
		Now:        now,
		Quotes:     quotes,
		Benchmark:  bench,
		Positions:  positions,
		Account:    acct,
		OpenOrders: open,
		Tracked:    tracked,
		Managed:    r.rt.Managed,
		Daily:      r.rt.Daily,
		Day:        r.rt.Day,

		BuysSuspended: r.rt.BuysSuspended,
	})
	st.Monitored = len(decisions)

	// 6. 주문 실행
	for _, d := range decisions {
		if d.Rejected != "" {
			st.Rejected++
		}
		if d.Intent == nil {
			continue
		}
		if r.execute(ctx, *d.Intent, quotes[d.InstrumentID]) {
			st.Trades++
		}
	}

	// 7. 상태 저장
	if st.Trades > 0 {
		r.persist()
	}

	if acct, err := r.positions.CashAndTotalAsset(ctx); err == nil {
		st.Cash, st.TotalAsset = acct.Cash, acct.TotalAsset
	}
	st.RemainingQuota = r.rt.Daily.RemainingQuota(r.cfg.Intraday.DailyQuota)
	st.Managed = r.rt.Managed.IDs()
	return st, nil
}

// execute books one intraday intent and settles its phase. Buys are checked
// against the remaining daily quota at the price that will be paid.
func (r *Runner) execute(ctx context.Context, intent contracts.TradeIntent, tick contracts.Tick) bool {
	if intent.Side == contracts.SideBuy {
		cost := float64(intent.Volume) * execution.IntentPrice(intent, tick, r.executor.Costs().Slippage)
		if remaining := r.rt.Daily.RemainingQuota(r.cfg.Intraday.DailyQuota); cost > remaining {
			r.rt.Day.Settle(intent.InstrumentID, false)
			r.logger.WithInstrument(intent.InstrumentID).WithFields(map[string]interface{}{
				"cost":      cost,
				"remaining": remaining,
			}).Warn("Buy exceeds remaining daily quota, skipped")
			return false
		}
	}

	res, err := r.executor.Execute(ctx, intent, tick)
	r.rt.Day.Settle(intent.InstrumentID, err == nil)
	if err != nil {
		r.logger.WithInstrument(intent.InstrumentID).WithError(err).Warn("Intraday order failed, will retry next cycle")
		return false
	}

	switch intent.Side {
	case contracts.SideBuy:
		r.rt.Daily.RecordBuy(intent.InstrumentID, res.Fill.Notional())
		r.rt.Managed.Add(intent.InstrumentID)
	case contracts.SideSell:
		r.rt.Daily.RecordSell(intent.InstrumentID)
		r.rt.Managed.Remove(intent.InstrumentID)
	}
	return true
}

func (r *Runner) publish(st Status, took time.Duration, err error) {
	r.statusMu.Lock()
	r.last = st
	subs := append([]func(Status){}, r.subscribers...)
	r.statusMu.Unlock()

	if st.Trading {
		r.logger.WithFields(map[string]interface{}{
			"date":            st.Date,
			"monitored":       st.Monitored,
			"remaining_quota": st.RemainingQuota,
			"regime":          st.Regime,
			"breaker":         st.Breaker,
			"trades":          st.Trades,
			"took_ms":         took.Milliseconds(),
		}).Info("Cycle status")
	}

	if r.metrics != nil {
		r.metrics.ObserveCycle(metrics.Cycle{
			Duration:       took,
			Err:            err,
			Monitored:      st.Monitored,
			RemainingQuota: st.RemainingQuota,
			Regime:         st.Regime,
			Breaker:        st.Breaker,
			Account:        contracts.Account{Cash: st.Cash, TotalAsset: st.TotalAsset},
		})
	}

	for _, fn := range subs {
		fn(st)
	}
}
