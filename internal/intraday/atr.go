package intraday

import (
	"math"

	"github.com/wonny/factorloop/internal/contracts"
)

// ATR is the mean true range of the last period sessions. ok is false when the
// window holds fewer than period+1 usable bars.
func ATR(window contracts.PriceWindow, period int) (float64, bool) {
	bars := make([]contracts.Bar, 0, len(window.Bars))
	for _, b := range window.Bars {
		if b.Close > 0 && b.High > 0 && b.Low > 0 {
			bars = append(bars, b)
		}
	}
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period), true
}

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(b contracts.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}
