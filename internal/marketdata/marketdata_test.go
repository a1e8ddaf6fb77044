package marketdata

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/contracts/contractstest"
	"github.com/wonny/factorloop/pkg/config"
	"github.com/wonny/factorloop/pkg/database"
	"github.com/wonny/factorloop/pkg/logger"
	"github.com/wonny/factorloop/pkg/redis"
)

var (
	_ contracts.MarketDataProvider = (*Store)(nil)
	_ contracts.MarketDataProvider = (*Cached)(nil)
)

func disabledCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(&config.Config{})
	require.NoError(t, err)
	return redis.NewCache(client, "test")
}

func TestCached_DisabledPassesThrough(t *testing.T) {
	ctx := context.Background()
	inner := contractstest.NewProvider()
	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	inner.SetCloses("a", end, 1, 2, 3)
	inner.Calendar = []time.Time{end}

	c := NewCached(inner, disabledCache(t), time.UTC, logger.NewNop())

	for i := 0; i < 2; i++ {
		w, err := c.PriceWindow(ctx, "a", contracts.PeriodDaily, 3)
		require.NoError(t, err)
		assert.Equal(t, 3, w.Len())
	}
	assert.Equal(t, 2, inner.Calls["window"])

	days, err := c.TradingCalendar(ctx, "SSE", end.AddDate(0, 0, -1), end)
	require.NoError(t, err)
	assert.Len(t, days, 1)

	_, err = c.LatestTick(ctx, "a")
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))
}

func TestCached_PropagatesErrors(t *testing.T) {
	inner := contractstest.NewProvider()
	inner.Errs["a"] = errors.New("db down")
	c := NewCached(inner, disabledCache(t), nil, logger.NewNop())

	_, err := c.Fundamentals(context.Background(), "a")
	assert.EqualError(t, err, "db down")
}

// Postgres round trip; skipped unless DATABASE_URL is set.
func TestStore_RoundTrip(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(&config.Config{Database: config.DatabaseConfig{URL: url, MaxConns: 2, MinConns: 1}})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	store := NewStore(db.Pool)
	id := "TEST" + time.Now().Format("150405")
	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	bars := []contracts.Bar{
		{Date: end.AddDate(0, 0, -2), Open: 1, High: 1, Low: 1, Close: 1},
		{Date: end.AddDate(0, 0, -1), Open: 2, High: 2, Low: 2, Close: 2},
		{Date: end, Open: 3, High: 3, Low: 3, Close: 3},
	}
	require.NoError(t, store.UpsertBars(ctx, id, bars))
	defer db.Pool.Exec(ctx, `DELETE FROM market.daily_bars WHERE instrument_id = $1`, id)

	w, err := store.PriceWindow(ctx, id, contracts.PeriodDaily, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, w.Closes())

	_, err = store.LatestTick(ctx, id)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))
}
