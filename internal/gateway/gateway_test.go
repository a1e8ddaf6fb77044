package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/contracts/contractstest"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/pkg/logger"
	"github.com/wonny/factorloop/pkg/retry"
)

var (
	_ contracts.MarketDataProvider = (*RetryingProvider)(nil)
	_ contracts.OrderGateway       = (*RetryingGateway)(nil)
	_ contracts.OrderGateway       = (*Paper)(nil)
)

var fastPolicy = retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

// flakyProvider fails the first n tick calls.
type flakyProvider struct {
	*contractstest.Provider
	failures int
	calls    int
}

func (f *flakyProvider) LatestTick(ctx context.Context, id string) (contracts.Tick, error) {
	f.calls++
	if f.calls <= f.failures {
		return contracts.Tick{}, errors.New("connection reset")
	}
	return f.Provider.LatestTick(ctx, id)
}

func TestRetryingProvider_RecoversTransient(t *testing.T) {
	inner := &flakyProvider{Provider: contractstest.NewProvider(), failures: 2}
	inner.Ticks["a"] = contracts.Tick{LastPrice: 10}

	p := NewRetryingProvider(inner, fastPolicy, nil, logger.NewNop())
	tick, err := p.LatestTick(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, tick.LastPrice)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingProvider_GivesUp(t *testing.T) {
	inner := &flakyProvider{Provider: contractstest.NewProvider(), failures: 10}
	p := NewRetryingProvider(inner, fastPolicy, nil, logger.NewNop())

	_, err := p.LatestTick(context.Background(), "a")
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingProvider_DataUnavailableNotRetried(t *testing.T) {
	inner := contractstest.NewProvider()
	p := NewRetryingProvider(inner, fastPolicy, nil, logger.NewNop())

	_, err := p.PriceWindow(context.Background(), "missing", contracts.PeriodDaily, 10)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))
	assert.Equal(t, 1, inner.Calls["window"])
}

func TestRetryingGateway_SubmitOnce(t *testing.T) {
	inner := &contractstest.Gateway{SubmitErr: errors.New("timeout")}
	g := NewRetryingGateway(inner, fastPolicy, nil, logger.NewNop())

	_, err := g.Submit(context.Background(), "a", contracts.SideBuy, 100, 10)
	require.Error(t, err)
	assert.Empty(t, inner.Submitted)

	inner.SubmitErr = nil
	id, err := g.Submit(context.Background(), "a", contracts.SideBuy, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
}

func TestRetryingGateway_Queries(t *testing.T) {
	inner := &contractstest.Gateway{
		Positions: []contracts.Position{{InstrumentID: "a", Volume: 100}},
		Account:   contracts.Account{Cash: 5, TotalAsset: 10},
	}
	g := NewRetryingGateway(inner, fastPolicy, nil, logger.NewNop())

	positions, err := g.QueryPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 1)

	acct, err := g.QueryAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, acct.TotalAsset)
}

func TestPaper(t *testing.T) {
	ctx := context.Background()
	ledger := position.NewSimulated(position.NewLedger(10000), nil, logger.NewNop())
	require.NoError(t, ledger.ApplyFill(ctx, contracts.Fill{InstrumentID: "a", Side: contracts.SideBuy, Volume: 100, Price: 10}))

	paper := NewPaper(ledger, time.UTC)
	clock := time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC)
	paper.SetClock(func() time.Time { return clock })

	id, err := paper.Submit(ctx, "a", contracts.SideSell, 100, 10.5)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)

	_, err = paper.Submit(ctx, "a", contracts.SideSell, 0, 10.5)
	assert.True(t, errors.Is(err, contracts.ErrInvalidQuote))

	orders, err := paper.QueryOrdersToday(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, contracts.StatusFilled, orders[0].Status)

	clock = clock.AddDate(0, 0, 1)
	orders, err = paper.QueryOrdersToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)

	open, err := paper.QueryOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	positions, err := paper.QueryPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(100), positions[0].Volume)

	acct, err := paper.QueryAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9000.0, acct.Cash)
}
