package factor

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
)

// Worst-case constants for missing or loss-making fundamentals.
const (
	WorstValuation = 999.0
	WorstQuality   = -99.0
)

// Input is everything needed to compute one instrument's factor record.
type Input struct {
	InstrumentID string
	Window       contracts.PriceWindow
	Fundamentals []contracts.FundamentalSnapshot
}

// computeRecord derives the six raw factors. Windows are cut at evalDate (inclusive)
// and fundamentals must be announced strictly before it.
func computeRecord(in Input, evalDate time.Time, shortWindow, midWindow int) (contracts.FactorRecord, error) {
	window := in.Window.Before(endOfDay(evalDate))
	last, ok := window.Last()
	if !ok || last.Close <= 0 || math.IsNaN(last.Close) {
		return contracts.FactorRecord{}, fmt.Errorf("%s has no positive current price: %w", in.InstrumentID, contracts.ErrDataUnavailable)
	}

	closes := window.ValidCloses()
	if len(closes) < midWindow {
		return contracts.FactorRecord{}, fmt.Errorf("%s has %d sessions, need %d: %w",
			in.InstrumentID, len(closes), midWindow, contracts.ErrDataUnavailable)
	}
	price := closes[len(closes)-1]

	rec := contracts.FactorRecord{
		InstrumentID:  in.InstrumentID,
		Date:          evalDate,
		MomentumShort: price/closes[len(closes)-shortWindow] - 1,
		MomentumMid:   price/closes[len(closes)-midWindow] - 1,
		Volatility:    volatility(closes, shortWindow),
		Bias:          bias(closes, shortWindow),
	}
	rec.Valuation, rec.Quality = fundamentals(in.Fundamentals, price, evalDate)
	return rec, nil
}

// volatility is the population standard deviation of the last n daily returns.
func volatility(closes []float64, n int) float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) > n {
		returns = returns[len(returns)-n:]
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	return math.Sqrt(ss / float64(len(returns)))
}

// bias is |price - mean| / mean over the last n closes.
func bias(closes []float64, n int) float64 {
	tail := closes[len(closes)-n:]
	var mean float64
	for _, c := range tail {
		mean += c
	}
	mean /= float64(len(tail))
	if mean == 0 {
		return 0
	}
	return math.Abs(closes[len(closes)-1]-mean) / mean
}

// fundamentals returns (valuation, quality) from the latest snapshot before evalDate.
// Quality is ROE in percent; derived from EPS/BVPS when ROE was not disclosed.
func fundamentals(snaps []contracts.FundamentalSnapshot, price float64, evalDate time.Time) (float64, float64) {
	snap, ok := contracts.LatestBefore(snaps, evalDate)
	if !ok {
		return WorstValuation, WorstQuality
	}

	valuation := WorstValuation
	if snap.EPS > 0 {
		valuation = price / snap.EPS
	}

	quality := WorstQuality
	switch {
	case snap.ROE != nil && !math.IsNaN(*snap.ROE):
		quality = *snap.ROE
	case snap.BookValuePerShare > 0:
		quality = snap.EPS / snap.BookValuePerShare * 100
	}
	return valuation, quality
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}
