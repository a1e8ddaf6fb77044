package regime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/contracts/contractstest"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

func TestClassify_Bands(t *testing.T) {
	// two-point windows keep the moving average exactly 100
	tests := []struct {
		name   string
		prices []float64
		want   contracts.Regime
	}{
		{"just above upper", []float64{97.9999, 102.0001}, contracts.RegimeBull},
		{"on upper band", []float64{98, 102}, contracts.RegimeChoppy},
		{"on lower band", []float64{102, 98}, contracts.RegimeChoppy},
		{"just below lower", []float64{102.0001, 97.9999}, contracts.RegimeBear},
		{"flat", []float64{100, 100}, contracts.RegimeChoppy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ma, err := Classify(tt.prices, 2, 1.02, 0.98)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, 100.0, ma, 1e-9)
		})
	}
}

func TestClassify_UsesLastLookback(t *testing.T) {
	prices := []float64{1000, 1000, 100, 100, 110}
	got, ma, err := Classify(prices, 3, 1.02, 0.98)
	require.NoError(t, err)
	assert.InDelta(t, 310.0/3, ma, 1e-9)
	assert.Equal(t, contracts.RegimeBull, got)
}

func TestClassify_Errors(t *testing.T) {
	_, _, err := Classify([]float64{100}, 20, 1.02, 0.98)
	assert.True(t, errors.Is(err, contracts.ErrRegimeComputation))

	_, _, err = Classify([]float64{0, 0}, 2, 1.02, 0.98)
	assert.True(t, errors.Is(err, contracts.ErrRegimeComputation))
}

func closes(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestDetect(t *testing.T) {
	cfg := strategyconfig.Default()
	bench := "000300.SH"
	end := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	t.Run("bull", func(t *testing.T) {
		p := contractstest.NewProvider()
		p.SetCloses(bench, end, append(closes(19, 100), 110)...)

		state := NewClassifier(cfg, logger.NewNop()).Detect(context.Background(), p, bench)
		assert.Equal(t, contracts.RegimeBull, state.Regime)
		assert.False(t, state.Fallback)
		assert.Equal(t, cfg.Regime.Bull, state.Weights)
		assert.Equal(t, 1.0, state.PositionMultiplier)
		assert.Equal(t, 110.0, state.Price)
		assert.InDelta(t, 100.5, state.MovingAverage, 1e-9)
	})

	t.Run("bear", func(t *testing.T) {
		p := contractstest.NewProvider()
		p.SetCloses(bench, end, append(closes(19, 100), 90)...)

		state := NewClassifier(cfg, logger.NewNop()).Detect(context.Background(), p, bench)
		assert.Equal(t, contracts.RegimeBear, state.Regime)
		assert.Equal(t, cfg.Regime.Bear, state.Weights)
		assert.Equal(t, 0.5, state.PositionMultiplier)
	})

	t.Run("fetch failure falls back", func(t *testing.T) {
		p := contractstest.NewProvider()
		p.Errs[bench] = errors.New("connection refused")

		state := NewClassifier(cfg, logger.NewNop()).Detect(context.Background(), p, bench)
		assert.Equal(t, contracts.RegimeChoppy, state.Regime)
		assert.True(t, state.Fallback)
		assert.Equal(t, cfg.Regime.Choppy, state.Weights)
		assert.Equal(t, 0.8, state.PositionMultiplier)
	})

	t.Run("short series falls back", func(t *testing.T) {
		p := contractstest.NewProvider()
		p.SetCloses(bench, end, closes(5, 100)...)

		state := NewClassifier(cfg, logger.NewNop()).Detect(context.Background(), p, bench)
		assert.True(t, state.Fallback)
		assert.Equal(t, contracts.RegimeChoppy, state.Regime)
	})

	t.Run("multiplier disabled", func(t *testing.T) {
		c := strategyconfig.Default()
		c.Regime.UsePositionMultiplier = false
		p := contractstest.NewProvider()
		p.SetCloses(bench, end, append(closes(19, 100), 90)...)

		state := NewClassifier(c, logger.NewNop()).Detect(context.Background(), p, bench)
		assert.Equal(t, 1.0, state.PositionMultiplier)
	})
}
