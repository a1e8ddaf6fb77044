// Package execution turns trade intents into gateway orders, fills and trade log entries.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/internal/tradelog"
	"github.com/wonny/factorloop/pkg/logger"
)

// Observer is notified of execution outcomes (metrics).
type Observer interface {
	TradeExecuted(side contracts.Side, reason contracts.ReasonTag, notional float64)
	TradeFailed(reason contracts.ReasonTag)
}

// Result is the outcome of one executed intent.
type Result struct {
	OrderID string
	Fill    contracts.Fill
	Record  contracts.TradeRecord
}

// Executor submits intents and books their fills.
// ⭐ SSOT: 주문 제출 → 체결 반영 → 트레이드 로그 순서는 여기서만
type Executor struct {
	gateway   contracts.OrderGateway
	positions position.Source
	sink      tradelog.Sink
	costs     strategyconfig.Costs
	observer  Observer
	logger    *logger.Logger
	now       func() time.Time
}

// NewExecutor creates an executor. sink and observer may be nil.
func NewExecutor(gateway contracts.OrderGateway, positions position.Source, sink tradelog.Sink, costs strategyconfig.Costs, log *logger.Logger) *Executor {
	return &Executor{
		gateway:   gateway,
		positions: positions,
		sink:      sink,
		costs:     costs,
		logger:    log.WithComponent("execution"),
		now:       time.Now,
	}
}

// SetObserver attaches an execution observer
func (e *Executor) SetObserver(o Observer) {
	e.observer = o
}

// SetClock overrides the timestamp source.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Costs returns the cost model in use
func (e *Executor) Costs() strategyconfig.Costs {
	return e.costs
}

// Execute submits intent at IntentPrice and books the result.
// A failed submit returns an error; bookkeeping failures after a successful
// submit are logged and the result is still returned.
func (e *Executor) Execute(ctx context.Context, intent contracts.TradeIntent, tick contracts.Tick) (Result, error) {
	log := e.logger.WithInstrument(intent.InstrumentID).WithFields(map[string]interface{}{
		"side":   intent.Side,
		"reason": intent.Reason,
		"volume": intent.Volume,
	})

	if intent.Volume <= 0 || intent.ReferencePrice <= 0 {
		e.failed(intent.Reason)
		return Result{}, fmt.Errorf("intent %s %d@%.4f: %w", intent.InstrumentID, intent.Volume, intent.ReferencePrice, contracts.ErrInvalidQuote)
	}

	// 1. 체결가 결정
	price := IntentPrice(intent, tick, e.costs.Slippage)

	// 2. 매도 손익 계산용 평균단가 (제출 전 스냅샷)
	before, err := e.positions.Position(ctx, intent.InstrumentID)
	if err != nil {
		log.WithError(err).Warn("Position lookup failed, cost basis unknown")
	}

	// 3. 주문 제출
	orderID, err := e.gateway.Submit(ctx, intent.InstrumentID, intent.Side, intent.Volume, price)
	if err != nil {
		e.failed(intent.Reason)
		return Result{}, fmt.Errorf("submit %s %s: %w", intent.Side, intent.InstrumentID, err)
	}

	// 4. 체결 반영
	fill := contracts.Fill{
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		Volume:       intent.Volume,
		Price:        price,
	}
	fill.Fee = Fee(fill.Notional(), e.costs)

	if err := e.positions.ApplyFill(ctx, fill); err != nil {
		if errors.Is(err, contracts.ErrStatePersistence) {
			log.WithError(err).Warn("Fill applied in memory, ledger not saved")
		} else {
			log.WithError(err).Error("Failed to apply fill")
		}
	}

	// 5. 트레이드 로그
	rec := contracts.TradeRecord{
		InstrumentID: intent.InstrumentID,
		Timestamp:    e.now(),
		Side:         intent.Side,
		Volume:       intent.Volume,
		Price:        price,
		CostBasis:    before.AvgCost,
		Reason:       intent.Reason,
		OrderID:      orderID,
	}
	if intent.Side == contracts.SideSell && before.AvgCost > 0 {
		rec.RealizedPnL = tradelog.RealizedPnL(price, before.AvgCost, intent.Volume, fill.Fee)
	}
	if e.sink != nil {
		if err := e.sink.Record(ctx, rec); err != nil {
			log.WithError(err).Warn("Failed to write trade log")
		}
	}

	if e.observer != nil {
		e.observer.TradeExecuted(intent.Side, intent.Reason, fill.Notional())
	}

	log.WithFields(map[string]interface{}{
		"price":    price,
		"fee":      fill.Fee,
		"order_id": orderID,
		"pnl":      rec.RealizedPnL,
	}).Info("Trade executed")

	return Result{OrderID: orderID, Fill: fill, Record: rec}, nil
}

func (e *Executor) failed(reason contracts.ReasonTag) {
	if e.observer != nil {
		e.observer.TradeFailed(reason)
	}
}
