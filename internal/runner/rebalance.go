package runner

import (
	"context"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/rebalance"
)

// evalDate is the trading date as midnight in the exchange timezone.
func (r *Runner) evalDate() time.Time {
	loc := r.cfg.Location()
	d, err := time.ParseInLocation(contracts.DateLayout, r.rt.Date, loc)
	if err != nil {
		now := r.now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	}
	return d
}

// rank detects the regime and ranks the universe. Caller holds opMu.
func (r *Runner) rank(ctx context.Context) (contracts.Ranking, error) {
	r.rt.Regime = r.regime.Detect(ctx, r.provider, r.cfg.Meta.Benchmark)
	evalDate := r.evalDate()

	ranking, err := r.factor.Rank(ctx, r.provider, r.cfg.Meta.Universe, evalDate, r.rt.Regime.Weights)
	if err != nil {
		return nil, err
	}
	r.rt.Ranking = ranking
	if r.metrics != nil {
		r.metrics.ObserveRanking(len(ranking))
	}

	if r.snapshots != nil && len(ranking) > 0 {
		if err := r.snapshots.SaveSnapshot(ctx, evalDate, r.rt.Regime.Regime, ranking); err != nil {
			r.logger.WithError(err).Warn("Failed to save ranking snapshot")
		}
	}
	return ranking, nil
}

// Rank computes a fresh ranking for the trading date of now without trading.
func (r *Runner) Rank(ctx context.Context, now time.Time) (contracts.Ranking, contracts.RegimeState, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.rt.Date == "" {
		date, _ := r.tradingDate(ctx, now)
		r.rt.Date = date
	}
	ranking, err := r.rank(ctx)
	return ranking, r.rt.Regime, err
}

// Rebalance ranks the universe and runs the rebalance check for the current
// session. A second check on the same trading date only applies the hard stop.
func (r *Runner) Rebalance(ctx context.Context, now time.Time) (rebalance.Report, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	trading, err := r.ensureDay(ctx, now)
	if err != nil {
		return rebalance.Report{}, err
	}
	if !trading {
		r.logger.Info("Not a trading day, rebalance skipped")
		return rebalance.Report{}, nil
	}

	// 1. 랭킹
	ranking, err := r.rank(ctx)
	if err != nil {
		return rebalance.Report{}, err
	}

	// 2. 시세: 감시 종목 + 보유 종목
	ids := ranking.Top(r.cfg.Rebalance.WatchCount)
	held, err := position.HeldSet(ctx, r.positions)
	if err != nil {
		return rebalance.Report{}, err
	}
	for id := range held {
		ids = append(ids, id)
	}
	quotes := r.quotes(ctx, ids)

	// 3. 리밸런싱 (같은 날 두 번째 실행은 하드스톱만)
	session := r.rt.Session.Count
	if r.rt.Session.LastRebalance == r.rt.Date {
		session = 0
	}
	report, err := r.rebalance.Check(ctx, rebalance.Input{
		Ranking: ranking,
		Quotes:  quotes,
		Regime:  r.rt.Regime,
		Managed: r.rt.Managed,
		Daily:   r.rt.Daily,
	}, session)
	report.Session = r.rt.Session.Count

	if report.Due {
		r.rt.Session.LastRebalance = r.rt.Date
		if err := r.store.SaveSession(r.rt.Session); err != nil {
			r.logger.WithError(err).Warn("Failed to save session counter")
		}
		if r.metrics != nil {
			r.metrics.ObserveRebalance()
		}
	}
	r.persist()
	return report, err
}

// Prune removes daily state files outside the retention window.
func (r *Runner) Prune(now time.Time) ([]string, error) {
	return r.store.Prune(now.In(r.cfg.Location()), r.cfg.Loop.StateRetentionDays)
}

// Runtime returns a copy of the runtime state for inspection.
func (r *Runner) Runtime() RuntimeState {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	rt := r.rt
	rt.Managed = contracts.NewManagedSet(r.rt.Managed.IDs()...)
	if r.rt.Daily != nil {
		d := *r.rt.Daily
		d.Instruments = make(map[string]contracts.InstrumentFlags, len(r.rt.Daily.Instruments))
		for k, v := range r.rt.Daily.Instruments {
			d.Instruments[k] = v
		}
		rt.Daily = &d
	}
	rt.Ranking = append(contracts.Ranking(nil), r.rt.Ranking...)
	return rt
}
