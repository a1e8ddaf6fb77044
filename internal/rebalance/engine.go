// Package rebalance rotates the managed portfolio toward the current top ranks.
package rebalance

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/execution"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

// IntentExecutor submits one intent and books it.
type IntentExecutor interface {
	Execute(ctx context.Context, intent contracts.TradeIntent, tick contracts.Tick) (execution.Result, error)
}

// Input is everything one rebalance check needs.
type Input struct {
	Ranking contracts.Ranking
	Quotes  map[string]contracts.Tick
	Regime  contracts.RegimeState
	Managed *contracts.ManagedSet
	Daily   *contracts.DailyRiskState // optional; trades mark the day's flags
}

// Rejection records why an instrument was not traded.
type Rejection struct {
	InstrumentID string         `json:"instrument_id"`
	Side         contracts.Side `json:"side"`
	Reason       string         `json:"reason"`
}

// Report summarizes one rebalance check.
type Report struct {
	Due         bool                    `json:"due"`
	Session     int                     `json:"session"`
	Regime      contracts.Regime        `json:"regime"`
	TargetValue float64                 `json:"target_value"`
	HardStops   []contracts.TradeRecord `json:"hard_stops"`
	Sells       []contracts.TradeRecord `json:"sells"`
	Buys        []contracts.TradeRecord `json:"buys"`
	Rejections  []Rejection             `json:"rejections"`
}

// Traded reports whether any order went out.
func (r Report) Traded() bool {
	return len(r.HardStops)+len(r.Sells)+len(r.Buys) > 0
}

// Engine runs the periodic rotation and the hard stop.
// ⭐ SSOT: 정기 리밸런싱 로직은 여기서만
type Engine struct {
	cfg       *strategyconfig.Config
	positions position.Source
	exec      IntentExecutor
	logger    *logger.Logger
}

// NewEngine creates a rebalance engine
func NewEngine(cfg *strategyconfig.Config, positions position.Source, exec IntentExecutor, log *logger.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		positions: positions,
		exec:      exec,
		logger:    log.WithComponent("rebalance"),
	}
}

// Due reports whether session (1-based trading-session count) is a rebalance
// session: the first session and every interval sessions after it.
func (e *Engine) Due(session int) bool {
	n := e.cfg.Rebalance.IntervalSessions
	if session <= 0 || n <= 0 {
		return false
	}
	return (session-1)%n == 0
}

// Check runs the hard stop, then the rotation when session is due.
// Instruments stopped out are not bought back in the same check.
func (e *Engine) Check(ctx context.Context, in Input, session int) (Report, error) {
	report := Report{Session: session, Regime: in.Regime.Regime, Due: e.Due(session)}
	if in.Managed == nil {
		in.Managed = contracts.NewManagedSet()
	}

	stopped, err := e.hardStop(ctx, in, &report)
	if err != nil {
		return report, err
	}

	if report.Due {
		if err := e.rotate(ctx, in, stopped, &report); err != nil {
			return report, err
		}
	}

	e.logger.WithFields(map[string]interface{}{
		"session":      session,
		"due":          report.Due,
		"regime":       report.Regime,
		"hard_stops":   len(report.HardStops),
		"sells":        len(report.Sells),
		"buys":         len(report.Buys),
		"rejections":   len(report.Rejections),
		"target_value": report.TargetValue,
	}).Info("Rebalance check completed")

	return report, nil
}

// sellable lists held instruments the strategy may close.
func (e *Engine) sellable(ctx context.Context, managed *contracts.ManagedSet) ([]string, error) {
	held, err := e.positions.HeldInstruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("held instruments: %w", err)
	}
	if e.cfg.Intraday.ManageAllHoldings {
		return held, nil
	}
	out := held[:0:0]
	for _, id := range held {
		if managed.Has(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) hardStop(ctx context.Context, in Input, report *Report) (map[string]bool, error) {
	stopped := make(map[string]bool)
	limit := e.cfg.Rebalance.HardStopLoss
	if limit >= 0 {
		return stopped, nil
	}

	ids, err := e.sellable(ctx, in.Managed)
	if err != nil {
		return stopped, err
	}

	for _, id := range ids {
		tick, ok := in.Quotes[id]
		if !ok {
			continue
		}
		inst := contracts.NewInstrument(id, tick)
		if inst.Halted {
			continue
		}

		pos, err := e.positions.Position(ctx, id)
		if err != nil || pos.IsFlat() {
			continue
		}
		ret := pos.Return(inst.LastPrice)
		if ret > limit {
			continue
		}
		if inst.LimitDown || inst.OneTickLocked() {
			report.Rejections = append(report.Rejections, Rejection{id, contracts.SideSell, "hard stop: limit locked"})
			continue
		}

		rec, ok := e.sell(ctx, in, inst, pos.Volume, contracts.ReasonHardStop,
			fmt.Sprintf("return %.2f%% <= %.2f%%", ret*100, limit*100), report)
		if ok {
			stopped[id] = true
			report.HardStops = append(report.HardStops, rec)
		}
	}
	return stopped, nil
}

func (e *Engine) rotate(ctx context.Context, in Input, banned map[string]bool, report *Report) error {
	rc := e.cfg.Rebalance
	if len(in.Ranking) == 0 {
		e.logger.Warn("Empty ranking, rotation skipped")
		return nil
	}

	watch := make(map[string]bool, rc.WatchCount)
	for _, id := range in.Ranking.Top(rc.WatchCount) {
		watch[id] = true
	}

	// 1. 감시 목록 밖으로 밀려난 보유 종목 매도
	ids, err := e.sellable(ctx, in.Managed)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if watch[id] || banned[id] {
			continue
		}
		tick, ok := in.Quotes[id]
		if !ok {
			report.Rejections = append(report.Rejections, Rejection{id, contracts.SideSell, "no quote"})
			continue
		}
		inst := contracts.NewInstrument(id, tick)
		switch {
		case inst.Halted:
			report.Rejections = append(report.Rejections, Rejection{id, contracts.SideSell, "halted"})
			continue
		case inst.LimitDown || inst.OneTickLocked():
			report.Rejections = append(report.Rejections, Rejection{id, contracts.SideSell, "limit locked"})
			continue
		}

		pos, err := e.positions.Position(ctx, id)
		if err != nil || pos.IsFlat() {
			continue
		}
		if rec, ok := e.sell(ctx, in, inst, pos.Volume, contracts.ReasonRebalanceOut, "outside watch list", report); ok {
			report.Sells = append(report.Sells, rec)
		}
	}

	// 2. 슬롯당 목표 금액 (매도 반영 후 총자산)
	acct, err := e.positions.CashAndTotalAsset(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	report.TargetValue = SlotValue(rc, acct.TotalAsset, in.Regime.PositionMultiplier)
	cash := acct.Cash

	// 3. 상위 종목 중 미보유 종목 매수
	held, err := position.HeldSet(ctx, e.positions)
	if err != nil {
		return fmt.Errorf("held instruments: %w", err)
	}
	for _, id := range in.Ranking.Top(rc.BuyinCount) {
		if held[id] || banned[id] {
			continue
		}
		spent, reason := e.buy(ctx, in, id, report.TargetValue, cash, report)
		if reason != "" {
			report.Rejections = append(report.Rejections, Rejection{id, contracts.SideBuy, reason})
			continue
		}
		cash -= spent
	}
	return nil
}

func (e *Engine) sell(ctx context.Context, in Input, inst contracts.Instrument, volume int64, reason contracts.ReasonTag, note string, report *Report) (contracts.TradeRecord, bool) {
	intent := contracts.TradeIntent{
		InstrumentID:   inst.ID,
		Side:           contracts.SideSell,
		Volume:         volume,
		ReferencePrice: inst.LastPrice,
		Reason:         reason,
		Note:           note,
	}
	res, err := e.exec.Execute(ctx, intent, in.Quotes[inst.ID])
	if err != nil {
		e.logger.WithInstrument(inst.ID).WithError(err).Warn("Sell failed, skipped")
		report.Rejections = append(report.Rejections, Rejection{inst.ID, contracts.SideSell, err.Error()})
		return contracts.TradeRecord{}, false
	}
	in.Managed.Remove(inst.ID)
	if in.Daily != nil {
		in.Daily.RecordSell(inst.ID)
	}
	return res.Record, true
}

// buy returns cash spent, or a rejection reason.
func (e *Engine) buy(ctx context.Context, in Input, id string, target, cash float64, report *Report) (float64, string) {
	tick, ok := in.Quotes[id]
	if !ok {
		return 0, "no quote"
	}
	inst := contracts.NewInstrument(id, tick)
	if inst.Halted {
		return 0, "halted"
	}
	if inst.OneTickLocked() {
		return 0, "one-tick limit lock"
	}

	costs := e.cfg.Costs
	price := execution.SlippagePrice(inst.LastPrice, contracts.SideBuy, costs.Slippage)
	volume := execution.LotVolume(target, price, costs.LotSize)
	if volume <= 0 {
		return 0, fmt.Sprintf("size 0 at %.4f", price)
	}

	notional := float64(volume) * price
	fee := execution.Fee(notional, costs)
	if notional+fee > cash+1e-9 {
		return 0, fmt.Sprintf("insufficient cash %.2f < %.2f", cash, notional+fee)
	}

	res, err := e.exec.Execute(ctx, contracts.TradeIntent{
		InstrumentID:   id,
		Side:           contracts.SideBuy,
		Volume:         volume,
		ReferencePrice: inst.LastPrice,
		Reason:         contracts.ReasonRebalanceIn,
		Note:           fmt.Sprintf("slot %.0f", target),
	}, tick)
	if err != nil {
		e.logger.WithInstrument(id).WithError(err).Warn("Buy failed, skipped")
		return 0, err.Error()
	}

	in.Managed.Add(id)
	if in.Daily != nil {
		in.Daily.RecordBuy(id, 0)
	}
	report.Buys = append(report.Buys, res.Record)
	return res.Fill.Notional() + res.Fill.Fee, ""
}

// SlotValue is the per-slot target for a total asset under cfg and multiplier.
func SlotValue(cfg strategyconfig.Rebalance, totalAsset, multiplier float64) float64 {
	base := totalAsset
	if cfg.MaxTotalAsset > 0 {
		base = math.Min(base, cfg.MaxTotalAsset)
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	if cfg.BuyinCount <= 0 {
		return 0
	}
	return base * multiplier / float64(cfg.BuyinCount)
}
