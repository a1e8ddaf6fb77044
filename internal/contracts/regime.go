package contracts

import (
	"fmt"
	"math"
)

// Regime classifies the benchmark trend.
type Regime string

const (
	RegimeBull   Regime = "bull"
	RegimeBear   Regime = "bear"
	RegimeChoppy Regime = "choppy"
)

// WeightTolerance is the allowed drift of a weight vector from 1.
const WeightTolerance = 1e-9

// RegimeWeights blends the three sub-scores into the composite score.
type RegimeWeights struct {
	Fundamental float64 `json:"fundamental" yaml:"fundamental"`
	Momentum    float64 `json:"momentum" yaml:"momentum"`
	Risk        float64 `json:"risk" yaml:"risk"`
}

// Sum returns the total weight
func (w RegimeWeights) Sum() float64 {
	return w.Fundamental + w.Momentum + w.Risk
}

// Validate checks non-negativity and that the weights sum to 1.
func (w RegimeWeights) Validate() error {
	if w.Fundamental < 0 || w.Momentum < 0 || w.Risk < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", w)
	}
	if math.Abs(w.Sum()-1.0) > WeightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.10f", w.Sum())
	}
	return nil
}

// RegimeState is recomputed once per cycle.
type RegimeState struct {
	Regime             Regime        `json:"regime"`
	Price              float64       `json:"price"`
	MovingAverage      float64       `json:"moving_average"`
	Weights            RegimeWeights `json:"weights"`
	PositionMultiplier float64       `json:"position_multiplier"`
	Fallback           bool          `json:"fallback"` // true when classification failed
}
