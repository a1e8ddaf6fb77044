// Package metrics exposes loop and execution counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/factorloop/internal/contracts"
)

const namespace = "factorloop"

var regimes = []contracts.Regime{contracts.RegimeBull, contracts.RegimeBear, contracts.RegimeChoppy}

// Metrics owns a private registry so tests can create as many as they like.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Metrics struct {
	registry *prometheus.Registry

	cycles         prometheus.Counter
	cycleErrors    prometheus.Counter
	cycleDuration  prometheus.Histogram
	monitored      prometheus.Gauge
	remainingQuota prometheus.Gauge
	breaker        prometheus.Gauge
	regime         *prometheus.GaugeVec
	ranked         prometheus.Gauge
	cash           prometheus.Gauge
	totalAsset     prometheus.Gauge
	trades         *prometheus.CounterVec
	tradeFailures  *prometheus.CounterVec
	notional       *prometheus.CounterVec
	rebalances     prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total", Help: "Completed polling cycles.",
		}),
		cycleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycle_errors_total", Help: "Cycles that ended with an error.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds", Help: "Polling cycle duration.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		monitored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "monitored_instruments", Help: "Instruments evaluated in the last cycle.",
		}),
		remainingQuota: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "remaining_buy_quota", Help: "Unspent daily buy quota.",
		}),
		breaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker", Help: "1 when new buys are suspended.",
		}),
		regime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "regime", Help: "1 for the active market regime.",
		}, []string{"regime"}),
		ranked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ranked_instruments", Help: "Instruments in the last ranking.",
		}),
		cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "cash", Help: "Available cash.",
		}),
		totalAsset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "total_asset", Help: "Cash plus market value.",
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total", Help: "Executed trades.",
		}, []string{"side", "reason"}),
		tradeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trade_failures_total", Help: "Intents that could not be executed.",
		}, []string{"reason"}),
		notional: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "traded_notional_total", Help: "Executed notional.",
		}, []string{"side"}),
		rebalances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rebalances_total", Help: "Rebalance checks that were due.",
		}),
	}

	m.registry.MustRegister(
		m.cycles, m.cycleErrors, m.cycleDuration, m.monitored, m.remainingQuota,
		m.breaker, m.regime, m.ranked, m.cash, m.totalAsset,
		m.trades, m.tradeFailures, m.notional, m.rebalances,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Cycle is the per-cycle snapshot recorded after every loop iteration.
type Cycle struct {
	Duration       time.Duration
	Err            error
	Monitored      int
	RemainingQuota float64
	Regime         contracts.Regime
	Breaker        bool
	Account        contracts.Account
}

// ObserveCycle records one loop iteration.
func (m *Metrics) ObserveCycle(c Cycle) {
	m.cycles.Inc()
	if c.Err != nil {
		m.cycleErrors.Inc()
	}
	m.cycleDuration.Observe(c.Duration.Seconds())
	m.monitored.Set(float64(c.Monitored))
	m.remainingQuota.Set(c.RemainingQuota)
	if c.Breaker {
		m.breaker.Set(1)
	} else {
		m.breaker.Set(0)
	}
	for _, r := range regimes {
		v := 0.0
		if r == c.Regime {
			v = 1
		}
		m.regime.WithLabelValues(string(r)).Set(v)
	}
	m.cash.Set(c.Account.Cash)
	m.totalAsset.Set(c.Account.TotalAsset)
}

// ObserveRanking records the ranking size
func (m *Metrics) ObserveRanking(n int) {
	m.ranked.Set(float64(n))
}

// ObserveRebalance counts a due rebalance
func (m *Metrics) ObserveRebalance() {
	m.rebalances.Inc()
}

// TradeExecuted implements execution.Observer.
func (m *Metrics) TradeExecuted(side contracts.Side, reason contracts.ReasonTag, notional float64) {
	m.trades.WithLabelValues(string(side), string(reason)).Inc()
	m.notional.WithLabelValues(string(side)).Add(notional)
}

// TradeFailed implements execution.Observer.
func (m *Metrics) TradeFailed(reason contracts.ReasonTag) {
	m.tradeFailures.WithLabelValues(string(reason)).Inc()
}
