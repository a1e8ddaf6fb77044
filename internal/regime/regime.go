// Package regime classifies the benchmark trend and selects scoring weights.
package regime

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

// Classify returns the regime for the last price against the mean of the last
// lookback prices, plus that moving average. Band boundaries are exclusive.
func Classify(prices []float64, lookback int, upper, lower float64) (contracts.Regime, float64, error) {
	if lookback <= 0 || len(prices) < lookback {
		return contracts.RegimeChoppy, 0, fmt.Errorf("need %d prices, have %d: %w", lookback, len(prices), contracts.ErrRegimeComputation)
	}

	tail := prices[len(prices)-lookback:]
	var sum float64
	for _, p := range tail {
		sum += p
	}
	ma := sum / float64(lookback)
	price := prices[len(prices)-1]

	if ma <= 0 || math.IsNaN(ma) || price <= 0 {
		return contracts.RegimeChoppy, ma, fmt.Errorf("non-positive moving average %.4f: %w", ma, contracts.ErrRegimeComputation)
	}

	switch {
	case price > ma*upper:
		return contracts.RegimeBull, ma, nil
	case price < ma*lower:
		return contracts.RegimeBear, ma, nil
	default:
		return contracts.RegimeChoppy, ma, nil
	}
}

// Classifier detects the regime of the configured benchmark.
// ⭐ SSOT: 국면 판단은 여기서만
type Classifier struct {
	cfg    *strategyconfig.Config
	logger *logger.Logger
}

// NewClassifier creates a classifier
func NewClassifier(cfg *strategyconfig.Config, log *logger.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: log.WithComponent("regime")}
}

// Detect fetches the benchmark window and classifies it. It never fails: any
// problem yields the choppy regime with Fallback set.
func (c *Classifier) Detect(ctx context.Context, provider contracts.MarketDataProvider, benchmark string) contracts.RegimeState {
	rc := c.cfg.Regime

	window, err := provider.PriceWindow(ctx, benchmark, contracts.PeriodDaily, rc.Lookback)
	if err != nil {
		return c.fallback(benchmark, fmt.Errorf("benchmark window: %w", err))
	}

	closes := window.ValidCloses()
	regime, ma, err := Classify(closes, rc.Lookback, rc.UpperBand, rc.LowerBand)
	if err != nil {
		return c.fallback(benchmark, err)
	}

	state := c.stateFor(regime)
	state.Price = closes[len(closes)-1]
	state.MovingAverage = ma

	c.logger.WithFields(map[string]interface{}{
		"benchmark":  benchmark,
		"regime":     regime,
		"price":      state.Price,
		"ma":         ma,
		"multiplier": state.PositionMultiplier,
	}).Debug("Regime detected")

	return state
}

func (c *Classifier) stateFor(r contracts.Regime) contracts.RegimeState {
	return contracts.RegimeState{
		Regime:             r,
		Weights:            c.cfg.WeightsFor(r),
		PositionMultiplier: c.cfg.MultiplierFor(r),
	}
}

func (c *Classifier) fallback(benchmark string, err error) contracts.RegimeState {
	c.logger.WithError(err).WithField("benchmark", benchmark).Warn("Regime detection failed, falling back to choppy")
	state := c.stateFor(contracts.RegimeChoppy)
	state.Fallback = true
	return state
}
