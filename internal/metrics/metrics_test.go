package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/execution"
)

var _ execution.Observer = (*Metrics)(nil)

func TestObserveCycle(t *testing.T) {
	m := New()

	m.ObserveCycle(Cycle{
		Duration:       120 * time.Millisecond,
		Monitored:      7,
		RemainingQuota: 15000,
		Regime:         contracts.RegimeBear,
		Breaker:        true,
		Account:        contracts.Account{Cash: 1000, TotalAsset: 5000},
	})
	m.ObserveCycle(Cycle{Err: errors.New("x"), Regime: contracts.RegimeBull})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycleErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regime.WithLabelValues("bull")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.regime.WithLabelValues("bear")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.breaker))
}

func TestTrades(t *testing.T) {
	m := New()
	m.TradeExecuted(contracts.SideBuy, contracts.ReasonDipBuy, 15000)
	m.TradeExecuted(contracts.SideBuy, contracts.ReasonDipBuy, 5000)
	m.TradeFailed(contracts.ReasonStopLoss)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.trades.WithLabelValues("BUY", "dip_buy")))
	assert.Equal(t, 20000.0, testutil.ToFloat64(m.notional.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeFailures.WithLabelValues("stop_loss")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRanking(12)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "factorloop_ranked_instruments 12"))
}
