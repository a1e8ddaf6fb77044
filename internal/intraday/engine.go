// Package intraday runs the per-cycle take-profit, stop and dip-buy checks.
package intraday

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/execution"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

// CycleInput is one polling cycle's snapshot.
type CycleInput struct {
	Now        time.Time
	Quotes     map[string]contracts.Tick
	Benchmark  *contracts.Tick // nil when the benchmark quote is unavailable
	Positions  map[string]contracts.Position
	Account    contracts.Account
	OpenOrders []contracts.Order
	Tracked    []string
	Managed    *contracts.ManagedSet
	Daily      *contracts.DailyRiskState
	Day        *DayState

	// BuysSuspended blocks new buys like the circuit breaker (sells still run).
	BuysSuspended bool
}

// Decision is the evaluation outcome for one instrument.
type Decision struct {
	InstrumentID  string                 `json:"instrument_id"`
	Phase         Phase                  `json:"phase"`
	Intent        *contracts.TradeIntent `json:"intent,omitempty"`
	EstimatedCost float64                `json:"estimated_cost,omitempty"`
	Rejected      string                 `json:"rejected,omitempty"`
	Skipped       string                 `json:"skipped,omitempty"`
}

// Engine evaluates intraday rules.
// ⭐ SSOT: 장중 매매 규칙은 여기서만
type Engine struct {
	cfg      *strategyconfig.Config
	provider contracts.MarketDataProvider
	logger   *logger.Logger
}

// NewEngine creates an intraday engine
func NewEngine(cfg *strategyconfig.Config, provider contracts.MarketDataProvider, log *logger.Logger) *Engine {
	return &Engine{cfg: cfg, provider: provider, logger: log.WithComponent("intraday")}
}

// BreakerTripped reports whether the benchmark day return is below the circuit
// breaker threshold. A missing benchmark never trips it.
func (e *Engine) BreakerTripped(bench *contracts.Tick) (bool, float64) {
	if bench == nil || bench.PrevClose <= 0 || bench.LastPrice <= 0 {
		return false, 0
	}
	ret := bench.LastPrice/bench.PrevClose - 1
	return ret < e.cfg.Intraday.CircuitBreaker, ret
}

// Monitored is the sorted union of held and tracked instruments.
func Monitored(positions map[string]contracts.Position, tracked []string) []string {
	seen := make(map[string]bool)
	var ids []string
	for id, p := range positions {
		if !p.IsFlat() && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range tracked {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// LoadATR fills day.ATR for ids not cached yet. Failures cache 0 so the
// fallback proxy is used without refetching every cycle.
func (e *Engine) LoadATR(ctx context.Context, day *DayState, ids []string) {
	period := e.cfg.Intraday.ATRPeriod
	for _, id := range ids {
		if _, ok := day.ATR[id]; ok {
			continue
		}
		window, err := e.provider.PriceWindow(ctx, id, contracts.PeriodDaily, period+10)
		if err != nil {
			e.logger.WithInstrument(id).WithError(err).Debug("ATR window unavailable, using fallback")
			day.ATR[id] = 0
			continue
		}
		atr, ok := ATR(window, period)
		if !ok {
			atr = 0
		}
		day.ATR[id] = atr
	}
}

// atrFor returns the cached ATR or prev_close * fallback pct.
func (e *Engine) atrFor(day *DayState, id string, prevClose float64) float64 {
	if atr := day.ATR[id]; atr > 0 {
		return atr
	}
	return prevClose * e.cfg.Intraday.ATRFallbackPct
}

// Evaluate checks every monitored instrument and returns one decision each.
// Intents are not executed here; the caller settles each triggered decision.
func (e *Engine) Evaluate(ctx context.Context, in CycleInput) []Decision {
	ic := e.cfg.Intraday
	if in.Daily == nil {
		in.Daily = contracts.NewDailyRiskState(in.Now.Format(contracts.DateLayout))
	}
	if in.Day == nil {
		in.Day = NewDayState(in.Daily.Date)
	}
	if in.Managed == nil {
		in.Managed = contracts.NewManagedSet()
	}

	ids := Monitored(in.Positions, in.Tracked)
	e.LoadATR(ctx, in.Day, ids)

	openSell := make(map[string]bool)
	for _, o := range in.OpenOrders {
		if o.IsOpen() && o.Side == contracts.SideSell {
			openSell[o.InstrumentID] = true
		}
	}

	breaker, benchRet := e.BreakerTripped(in.Benchmark)
	if breaker {
		e.logger.WithField("benchmark_return", benchRet).Warn("Circuit breaker tripped, buys suspended")
	}

	b := &budget{
		quota: in.Daily.RemainingQuota(ic.DailyQuota),
		cash:  in.Account.Cash,
		total: in.Account.TotalAsset,
	}

	decisions := make([]Decision, 0, len(ids))
	for _, id := range ids {
		d := e.evaluateOne(in, id, openSell[id], breaker || in.BuysSuspended, b)
		if d.Intent != nil {
			e.logger.WithInstrument(id).WithFields(map[string]interface{}{
				"side":   d.Intent.Side,
				"reason": d.Intent.Reason,
				"volume": d.Intent.Volume,
				"price":  d.Intent.ReferencePrice,
				"note":   d.Intent.Note,
			}).Info("Intraday trigger")
		} else if d.Rejected != "" {
			e.logger.WithInstrument(id).WithField("reason", d.Rejected).Debug("Intraday trigger rejected")
		}
		decisions = append(decisions, d)
	}
	return decisions
}

type budget struct {
	quota float64
	cash  float64
	total float64
}

func (e *Engine) evaluateOne(in CycleInput, id string, openSell, breaker bool, b *budget) Decision {
	ic := e.cfg.Intraday
	d := Decision{InstrumentID: id, Phase: in.Day.Phase(id)}

	tick, ok := in.Quotes[id]
	if !ok {
		d.Skipped = "no quote"
		return d
	}
	if ic.TickMaxAge > 0 && !tick.Timestamp.IsZero() && in.Now.Sub(tick.Timestamp) > ic.TickMaxAge {
		d.Skipped = "stale quote"
		return d
	}
	inst := contracts.NewInstrument(id, tick)
	if inst.Halted || inst.PrevClose <= 0 {
		d.Skipped = "halted"
		return d
	}

	switch d.Phase {
	case PhaseTriggered, PhaseDone:
		return d
	case PhaseIdle:
		d.Phase = PhaseWatching
		in.Day.Phases[id] = PhaseWatching
	}

	price := inst.LastPrice
	high := in.Day.ObserveHigh(id, tick.High, price)
	atr := e.atrFor(in.Day, id, inst.PrevClose)
	profitLine := ic.ATRMultiplier * atr / inst.PrevClose
	lossLine := -profitLine
	dayRet := inst.DayReturn()
	flags := in.Daily.Flags(id)
	pos := in.Positions[id]

	// 1. 매도 판단 (당일 매수/매도 이력 없음, 미체결 매도 없음)
	if !pos.IsFlat() && !flags.Traded() && !openSell && (ic.ManageAllHoldings || in.Managed.Has(id)) {
		var (
			reason contracts.ReasonTag
			note   string
		)
		ret := pos.Return(price)
		highRet := high/inst.PrevClose - 1

		switch {
		case ret >= ic.ProfitTarget:
			reason, note = contracts.ReasonTakeProfit, fmt.Sprintf("return %.2f%%", ret*100)
		case ret <= ic.LossLimit:
			reason, note = contracts.ReasonStopLoss, fmt.Sprintf("return %.2f%%", ret*100)
		case highRet > profitLine && highRet-dayRet >= ic.TrailingDrawdown:
			reason, note = contracts.ReasonTrailingStop, fmt.Sprintf("high %.2f%% drawdown %.2f%%", highRet*100, (highRet-dayRet)*100)
		case dayRet < lossLine && dayRet > ic.DipThreshold:
			reason, note = contracts.ReasonATRStop, fmt.Sprintf("day %.2f%% < %.2f%%", dayRet*100, lossLine*100)
		}

		if reason != "" {
			if inst.LimitDown {
				d.Rejected = "limit down, sell unfillable"
				return d
			}
			d.Phase = PhaseTriggered
			in.Day.Phases[id] = PhaseTriggered
			d.Intent = &contracts.TradeIntent{
				InstrumentID:   id,
				Side:           contracts.SideSell,
				Volume:         pos.Volume,
				ReferencePrice: price,
				Reason:         reason,
				Note:           note,
			}
			return d
		}
	}

	// 2. 매수 판단 (무보유, 당일 거래 없음, 서킷브레이커 해제)
	if !pos.IsFlat() || flags.Traded() || breaker {
		return d
	}
	if dayRet >= ic.DipThreshold || inst.Low <= 0 {
		return d
	}
	rebound := price/inst.Low - 1
	if rebound < ic.ReboundThreshold || inst.LimitDown {
		return d
	}

	// 체결 예상가: 매도1호가 우선, 없으면 슬리피지 반영가
	costs := e.cfg.Costs
	fill := execution.FillPrice(price, contracts.SideBuy, tick, costs.Slippage)
	volume := execution.LotVolume(ic.BuyQuota, fill, costs.LotSize)
	if volume <= 0 {
		d.Rejected = fmt.Sprintf("size 0 at %.4f", fill)
		return d
	}
	cost := float64(volume) * fill
	fee := execution.Fee(cost, costs)

	switch {
	case cost > b.quota:
		d.Rejected = fmt.Sprintf("%v: daily quota %.0f < %.0f", contracts.ErrCapacityExceeded, b.quota, cost)
		return d
	case b.total > 0 && (pos.MarketValue+cost)/b.total > ic.SingleInstrumentCap:
		d.Rejected = fmt.Sprintf("%v: exposure %.2f%% > cap %.2f%%", contracts.ErrCapacityExceeded, (pos.MarketValue+cost)/b.total*100, ic.SingleInstrumentCap*100)
		return d
	case cost+fee > b.cash:
		d.Rejected = fmt.Sprintf("%v: cash %.0f < %.0f", contracts.ErrCapacityExceeded, b.cash, cost+fee)
		return d
	}

	b.quota -= cost
	b.cash -= cost + fee
	d.Phase = PhaseTriggered
	in.Day.Phases[id] = PhaseTriggered
	d.EstimatedCost = cost
	d.Intent = &contracts.TradeIntent{
		InstrumentID:   id,
		Side:           contracts.SideBuy,
		Volume:         volume,
		ReferencePrice: price,
		Reason:         contracts.ReasonDipBuy,
		Note:           fmt.Sprintf("day %.2f%% rebound %.2f%%", dayRet*100, rebound*100),
	}
	return d
}

// Rollover resets the day-scoped state for date and drops managed entries
// that are no longer held.
func Rollover(date string, daily *contracts.DailyRiskState, managed *contracts.ManagedSet, held map[string]bool) (*DayState, []string) {
	daily.Reset(date)
	removed := managed.Reconcile(held)
	return NewDayState(date), removed
}
