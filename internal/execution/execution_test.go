package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/contracts/contractstest"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

func TestFee(t *testing.T) {
	costs := strategyconfig.Costs{FeeRate: 0.0001, MinFee: 5}

	tests := []struct {
		notional float64
		want     float64
	}{
		{0, 5},
		{1200, 5},
		{50000, 5},
		{100000, 10},
		{123456.78, 12.35},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Fee(tt.notional, costs), "notional %.2f", tt.notional)
	}
}

func TestFillPrice(t *testing.T) {
	assert.InDelta(t, 10.02, FillPrice(10, contracts.SideBuy, contracts.Tick{}, 0.002), 1e-12)
	assert.InDelta(t, 9.98, FillPrice(10, contracts.SideSell, contracts.Tick{}, 0.002), 1e-12)
	assert.Equal(t, 9.99, FillPrice(10, contracts.SideSell, contracts.Tick{Bid1: 9.99, Ask1: 10.01}, 0.002))
	assert.Equal(t, 10.01, FillPrice(10, contracts.SideBuy, contracts.Tick{Bid1: 9.99, Ask1: 10.01}, 0.002))
}

func TestIntentPrice(t *testing.T) {
	touch := contracts.Tick{Bid1: 14.9, Ask1: 15.1}
	tests := []struct {
		name   string
		side   contracts.Side
		reason contracts.ReasonTag
		want   float64
	}{
		{"rebalance buy pays slippage", contracts.SideBuy, contracts.ReasonRebalanceIn, 15.15},
		{"rebalance sell pays slippage", contracts.SideSell, contracts.ReasonRebalanceOut, 14.85},
		{"hard stop pays slippage", contracts.SideSell, contracts.ReasonHardStop, 14.85},
		{"dip buy takes ask", contracts.SideBuy, contracts.ReasonDipBuy, 15.1},
		{"stop loss takes bid", contracts.SideSell, contracts.ReasonStopLoss, 14.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := contracts.TradeIntent{Side: tt.side, Reason: tt.reason, ReferencePrice: 15}
			assert.InDelta(t, tt.want, IntentPrice(intent, touch, 0.01), 1e-9)
		})
	}
}

func TestLotVolume(t *testing.T) {
	assert.Equal(t, int64(1400), LotVolume(15000, 10.5, 100))
	assert.Equal(t, int64(0), LotVolume(15000, 200, 100))
	assert.Equal(t, int64(7), LotVolume(15000, 2000, 0))
	assert.Equal(t, int64(0), LotVolume(15000, 0, 100))
}

type memSink struct{ recs []contracts.TradeRecord }

func (m *memSink) Record(_ context.Context, rec contracts.TradeRecord) error {
	m.recs = append(m.recs, rec)
	return nil
}

type countObserver struct{ ok, failed int }

func (c *countObserver) TradeExecuted(contracts.Side, contracts.ReasonTag, float64) { c.ok++ }
func (c *countObserver) TradeFailed(contracts.ReasonTag) { c.failed++ }

func newExecutor(gw contracts.OrderGateway) (*Executor, *position.Simulated, *memSink, *countObserver) {
	sim := position.NewSimulated(position.NewLedger(100000), nil, logger.NewNop())
	sink := &memSink{}
	obs := &countObserver{}
	costs := strategyconfig.Default().Costs
	e := NewExecutor(gw, sim, sink, costs, logger.NewNop())
	e.SetObserver(obs)
	e.SetClock(func() time.Time { return time.Date(2024, 5, 10, 10, 0, 0, 0, time.UTC) })
	return e, sim, sink, obs
}

func TestExecute_BuyThenSell(t *testing.T) {
	ctx := context.Background()
	gw := &contractstest.Gateway{}
	e, sim, sink, obs := newExecutor(gw)

	res, err := e.Execute(ctx, contracts.TradeIntent{
		InstrumentID: "600000", Side: contracts.SideBuy, Volume: 1000, ReferencePrice: 10, Reason: contracts.ReasonDipBuy,
	}, contracts.Tick{})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.InDelta(t, 10.02, res.Fill.Price, 1e-9)
	assert.Equal(t, 5.0, res.Fill.Fee)

	pos, _ := sim.Position(ctx, "600000")
	assert.Equal(t, int64(1000), pos.Volume)

	res, err = e.Execute(ctx, contracts.TradeIntent{
		InstrumentID: "600000", Side: contracts.SideSell, Volume: 1000, ReferencePrice: 12, Reason: contracts.ReasonTakeProfit,
	}, contracts.Tick{Bid1: 11.9})
	require.NoError(t, err)
	assert.Equal(t, 11.9, res.Fill.Price)
	assert.InDelta(t, 10.02, res.Record.CostBasis, 1e-9)
	assert.InDelta(t, (11.9-10.02)*1000-5, res.Record.RealizedPnL, 1e-6)

	require.Len(t, sink.recs, 2)
	assert.Equal(t, contracts.ReasonTakeProfit, sink.recs[1].Reason)
	assert.Equal(t, 2, obs.ok)
	assert.Len(t, gw.Submitted, 2)
}

func TestExecute_SubmitFailure(t *testing.T) {
	ctx := context.Background()
	gw := &contractstest.Gateway{SubmitErr: errors.New("rejected by broker")}
	e, sim, sink, obs := newExecutor(gw)

	_, err := e.Execute(ctx, contracts.TradeIntent{
		InstrumentID: "600000", Side: contracts.SideBuy, Volume: 100, ReferencePrice: 10, Reason: contracts.ReasonRebalanceIn,
	}, contracts.Tick{})
	require.Error(t, err)

	held, _ := sim.HeldInstruments(ctx)
	assert.Empty(t, held)
	assert.Empty(t, sink.recs)
	assert.Equal(t, 1, obs.failed)
}

func TestExecute_InvalidIntent(t *testing.T) {
	e, _, _, _ := newExecutor(&contractstest.Gateway{})
	_, err := e.Execute(context.Background(), contracts.TradeIntent{InstrumentID: "x", Side: contracts.SideBuy, Volume: 0, ReferencePrice: 10}, contracts.Tick{})
	assert.True(t, errors.Is(err, contracts.ErrInvalidQuote))
}
