// Package factor computes factor records and the composite ranking.
package factor

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/robust"
	"github.com/wonny/factorloop/internal/strategyconfig"
	"github.com/wonny/factorloop/pkg/logger"
)

// Blend is the fixed internal mix of each sub-score.
type Blend struct {
	Valuation     float64 // applied to -valuation
	Quality       float64
	MomentumShort float64
	MomentumMid   float64
	Volatility    float64 // applied to -volatility
	Bias          float64 // applied to -bias
}

var (
	// StandardBlend favors quality inside the fundamental score and volatility inside risk.
	StandardBlend = Blend{Valuation: 0.3, Quality: 0.7, MomentumShort: 0.6, MomentumMid: 0.4, Volatility: 0.7, Bias: 0.3}
	// SectorBlend is used when ranking inside a single sector.
	SectorBlend = Blend{Valuation: 0.5, Quality: 0.5, MomentumShort: 0.6, MomentumMid: 0.4, Volatility: 0.5, Bias: 0.5}
)

// Engine computes factor records and ranks them.
// ⭐ SSOT: 팩터 계산/랭킹은 여기서만
type Engine struct {
	cfg    strategyconfig.Factor
	blend  Blend
	logger *logger.Logger
}

// NewEngine creates a factor engine
func NewEngine(cfg strategyconfig.Factor, log *logger.Logger) *Engine {
	blend := StandardBlend
	if cfg.SectorNeutral {
		blend = SectorBlend
	}
	return &Engine{cfg: cfg, blend: blend, logger: log.WithComponent("factor")}
}

// WindowSize is the number of sessions requested per instrument.
func (e *Engine) WindowSize() int {
	return e.cfg.MidWindow + e.cfg.ShortWindow
}

// Compute returns a record for every instrument with enough data. Insufficient
// instruments are dropped and logged, never fail the batch.
func (e *Engine) Compute(inputs []Input, evalDate time.Time) []contracts.FactorRecord {
	records := make([]contracts.FactorRecord, 0, len(inputs))
	for _, in := range inputs {
		rec, err := computeRecord(in, evalDate, e.cfg.ShortWindow, e.cfg.MidWindow)
		if err != nil {
			e.logger.WithInstrument(in.InstrumentID).WithError(err).Debug("Excluded from ranking")
			continue
		}
		records = append(records, rec)
	}
	return records
}

// Score clips and standardizes each factor column, blends sub-scores and ranks.
func (e *Engine) Score(records []contracts.FactorRecord, weights contracts.RegimeWeights) contracts.Ranking {
	if len(records) == 0 {
		return contracts.Ranking{}
	}

	column := func(get func(contracts.FactorRecord) float64) []float64 {
		col := make([]float64, len(records))
		for i, r := range records {
			col[i] = get(r)
		}
		return robust.ClipAndStandardize(col, e.cfg.ClipN)
	}

	val := column(func(r contracts.FactorRecord) float64 { return r.Valuation })
	qual := column(func(r contracts.FactorRecord) float64 { return r.Quality })
	momS := column(func(r contracts.FactorRecord) float64 { return r.MomentumShort })
	momM := column(func(r contracts.FactorRecord) float64 { return r.MomentumMid })
	vol := column(func(r contracts.FactorRecord) float64 { return r.Volatility })
	bias := column(func(r contracts.FactorRecord) float64 { return r.Bias })

	b := e.blend
	ranking := make(contracts.Ranking, len(records))
	for i, rec := range records {
		fund := b.Valuation*(-val[i]) + b.Quality*qual[i]
		mom := b.MomentumShort*momS[i] + b.MomentumMid*momM[i]
		risk := b.Volatility*(-vol[i]) + b.Bias*(-bias[i])

		ranking[i] = contracts.CompositeScore{
			InstrumentID: rec.InstrumentID,
			Total:        weights.Fundamental*fund + weights.Momentum*mom + weights.Risk*risk,
			Fundamental:  fund,
			Momentum:     mom,
			Risk:         risk,
			Factors:      rec,
		}
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Total != ranking[j].Total {
			return ranking[i].Total > ranking[j].Total
		}
		return ranking[i].InstrumentID < ranking[j].InstrumentID
	})
	for i := range ranking {
		ranking[i].Rank = i + 1
	}
	return ranking
}

// Rank fetches data for universe through the provider, then computes and scores it.
func (e *Engine) Rank(ctx context.Context, provider contracts.MarketDataProvider, universe []string, evalDate time.Time, weights contracts.RegimeWeights) (contracts.Ranking, error) {
	inputs := make([]Input, 0, len(universe))
	for _, id := range universe {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		window, err := provider.PriceWindow(ctx, id, contracts.PeriodDaily, e.WindowSize())
		if err != nil {
			e.logger.WithInstrument(id).WithError(err).Debug("Price window unavailable")
			continue
		}

		snaps, err := provider.Fundamentals(ctx, id)
		if err != nil && !errors.Is(err, contracts.ErrDataUnavailable) {
			e.logger.WithInstrument(id).WithError(err).Warn("Fundamentals unavailable, using worst-case values")
		}

		inputs = append(inputs, Input{InstrumentID: id, Window: window, Fundamentals: snaps})
	}

	ranking := e.Score(e.Compute(inputs, evalDate), weights)

	fields := map[string]interface{}{
		"universe": len(universe),
		"ranked":   len(ranking),
		"date":     evalDate.Format(contracts.DateLayout),
	}
	if len(ranking) > 0 {
		fields["top"] = ranking[0].InstrumentID
		fields["top_score"] = ranking[0].Total
	}
	e.logger.WithFields(fields).Info("Ranking completed")

	return ranking, nil
}
