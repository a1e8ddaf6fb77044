package position

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/contracts/contractstest"
	"github.com/wonny/factorloop/pkg/logger"
)

var (
	_ Source = (*Simulated)(nil)
	_ Source = (*Live)(nil)
	_ Marker = (*Simulated)(nil)
)

type recordingSaver struct {
	saved []Ledger
	err   error
}

func (r *recordingSaver) Save(l Ledger) error {
	r.saved = append(r.saved, l)
	return r.err
}

func buy(id string, vol int64, price, fee float64) contracts.Fill {
	return contracts.Fill{InstrumentID: id, Side: contracts.SideBuy, Volume: vol, Price: price, Fee: fee}
}

func sell(id string, vol int64, price, fee float64) contracts.Fill {
	return contracts.Fill{InstrumentID: id, Side: contracts.SideSell, Volume: vol, Price: price, Fee: fee}
}

func TestSimulated_BuyAveragesCost(t *testing.T) {
	ctx := context.Background()
	saver := &recordingSaver{}
	sim := NewSimulated(NewLedger(100000), saver, logger.NewNop())

	require.NoError(t, sim.ApplyFill(ctx, buy("600519", 100, 10, 5)))
	require.NoError(t, sim.ApplyFill(ctx, buy("600519", 100, 12, 5)))

	pos, err := sim.Position(ctx, "600519")
	require.NoError(t, err)
	assert.Equal(t, int64(200), pos.Volume)
	assert.InDelta(t, 11.0, pos.AvgCost, 1e-9)

	acct, err := sim.CashAndTotalAsset(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100000-1000-5-1200-5, acct.Cash, 1e-9)
	// marked at the last fill price
	assert.InDelta(t, acct.Cash+200*12, acct.TotalAsset, 1e-9)
	assert.Len(t, saver.saved, 2)
}

func TestSimulated_SellAndFlatten(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(NewLedger(10000), nil, logger.NewNop())

	require.NoError(t, sim.ApplyFill(ctx, buy("000001", 300, 10, 5)))
	require.NoError(t, sim.ApplyFill(ctx, sell("000001", 100, 11, 5)))

	pos, _ := sim.Position(ctx, "000001")
	assert.Equal(t, int64(200), pos.Volume)
	assert.InDelta(t, 10.0, pos.AvgCost, 1e-9)

	require.NoError(t, sim.ApplyFill(ctx, sell("000001", 500, 9, 5)))
	pos, _ = sim.Position(ctx, "000001")
	assert.True(t, pos.IsFlat())
	assert.Zero(t, pos.AvgCost)

	held, _ := sim.HeldInstruments(ctx)
	assert.Empty(t, held)

	acct, _ := sim.CashAndTotalAsset(ctx)
	// clamped to 200 on the second sell
	assert.InDelta(t, 10000-3000-5+1100-5+1800-5, acct.Cash, 1e-9)
	assert.InDelta(t, acct.Cash, acct.TotalAsset, 1e-9)
}

func TestSimulated_MarkAndUnknown(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(NewLedger(5000), nil, logger.NewNop())
	require.NoError(t, sim.ApplyFill(ctx, buy("a", 100, 10, 0)))

	sim.Mark("a", 12)
	sim.Mark("ghost", 50)
	sim.Mark("a", 0)

	pos, _ := sim.Position(ctx, "a")
	assert.InDelta(t, 1200.0, pos.MarketValue, 1e-9)

	ghost, err := sim.Position(ctx, "ghost")
	require.NoError(t, err)
	assert.Equal(t, contracts.Position{InstrumentID: "ghost"}, ghost)
}

func TestSimulated_PersistenceFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	saver := &recordingSaver{err: errors.New("disk full")}
	sim := NewSimulated(NewLedger(5000), saver, logger.NewNop())

	err := sim.ApplyFill(ctx, buy("a", 100, 10, 0))
	assert.True(t, errors.Is(err, contracts.ErrStatePersistence))

	pos, _ := sim.Position(ctx, "a")
	assert.Equal(t, int64(100), pos.Volume)
}

func TestSimulated_RejectsBadFill(t *testing.T) {
	sim := NewSimulated(NewLedger(5000), nil, logger.NewNop())
	err := sim.ApplyFill(context.Background(), buy("a", 0, 10, 0))
	assert.True(t, errors.Is(err, contracts.ErrInvalidQuote))
}

func TestSimulated_RejectsSellWithoutHolding(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(*Simulated)
	}{
		{"unknown instrument", func(*Simulated) {}},
		{"flattened instrument", func(sim *Simulated) {
			require.NoError(t, sim.ApplyFill(ctx, buy("a", 100, 10, 0)))
			require.NoError(t, sim.ApplyFill(ctx, sell("a", 100, 10, 0)))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := NewSimulated(NewLedger(5000), nil, logger.NewNop())
			tt.setup(sim)
			before, _ := sim.CashAndTotalAsset(ctx)

			err := sim.ApplyFill(ctx, sell("a", 100, 10, 5))
			assert.True(t, errors.Is(err, contracts.ErrInvalidQuote))

			after, _ := sim.CashAndTotalAsset(ctx)
			assert.Equal(t, before.Cash, after.Cash)
		})
	}
}

func TestSimulated_RecordOrderKeepsOneDay(t *testing.T) {
	sim := NewSimulated(NewLedger(5000), nil, logger.NewNop())
	day1 := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)

	sim.RecordOrder(contracts.Order{ID: "1", SubmittedAt: day1}, time.UTC)
	sim.RecordOrder(contracts.Order{ID: "2", SubmittedAt: day1.Add(time.Hour)}, time.UTC)
	require.Len(t, sim.Orders(), 2)
	assert.Len(t, sim.Snapshot().Orders, 2)

	sim.RecordOrder(contracts.Order{ID: "3", SubmittedAt: day1.AddDate(0, 0, 1)}, time.UTC)
	orders := sim.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, "3", orders[0].ID)
}

func TestSimulated_SnapshotIsCopy(t *testing.T) {
	ctx := context.Background()
	sim := NewSimulated(NewLedger(5000), nil, logger.NewNop())
	require.NoError(t, sim.ApplyFill(ctx, buy("a", 100, 10, 0)))

	snap := sim.Snapshot()
	snap.Positions["a"].Volume = 1

	pos, _ := sim.Position(ctx, "a")
	assert.Equal(t, int64(100), pos.Volume)
}

func TestLive_ReadThrough(t *testing.T) {
	ctx := context.Background()
	gw := &contractstest.Gateway{
		Positions: []contracts.Position{
			{InstrumentID: "b", Volume: 200, AvgCost: 5},
			{InstrumentID: "a", Volume: 100, AvgCost: 10},
			{InstrumentID: "z", Volume: 0},
		},
		Account: contracts.Account{Cash: 1000, TotalAsset: 3000},
	}
	live := NewLive(gw)

	held, err := live.HeldInstruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, held)

	pos, err := live.Position(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, int64(200), pos.Volume)

	missing, err := live.Position(ctx, "q")
	require.NoError(t, err)
	assert.True(t, missing.IsFlat())

	acct, err := live.CashAndTotalAsset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, acct.TotalAsset)

	assert.NoError(t, live.ApplyFill(ctx, buy("a", 1, 1, 0)))

	set, err := HeldSet(ctx, live)
	require.NoError(t, err)
	assert.True(t, set["a"])
	assert.False(t, set["z"])
}

func TestLive_GatewayError(t *testing.T) {
	gw := &contractstest.Gateway{QueryErr: errors.New("session expired")}
	_, err := NewLive(gw).HeldInstruments(context.Background())
	assert.Error(t, err)
}
