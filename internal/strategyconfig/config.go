package strategyconfig

import (
	"time"
	_ "time/tzdata"

	"github.com/wonny/factorloop/internal/contracts"
)

// Config is the immutable strategy parameter set passed to every engine.
// ⭐ SSOT: 전략 파라미터는 여기서만 (전역 상수 금지)
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Factor    Factor    `yaml:"factor" json:"factor"`
	Regime    Regime    `yaml:"regime" json:"regime"`
	Rebalance Rebalance `yaml:"rebalance" json:"rebalance"`
	Intraday  Intraday  `yaml:"intraday" json:"intraday"`
	Costs     Costs     `yaml:"costs" json:"costs"`
	Loop      Loop      `yaml:"loop" json:"loop"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string   `yaml:"strategy_id" json:"strategy_id"`
	Version    string   `yaml:"version" json:"version"`
	Timezone   string   `yaml:"timezone" json:"timezone"`
	Market     string   `yaml:"market" json:"market"`
	Benchmark  string   `yaml:"benchmark" json:"benchmark"`
	Universe   []string `yaml:"universe" json:"universe"`
}

// Factor windows and scoring mode
type Factor struct {
	ShortWindow int     `yaml:"short_window" json:"short_window"`
	MidWindow   int     `yaml:"mid_window" json:"mid_window"`
	ClipN       float64 `yaml:"clip_n" json:"clip_n"`
	// SectorNeutral switches fundamental and risk sub-scores to an even blend.
	SectorNeutral bool `yaml:"sector_neutral" json:"sector_neutral"`
}

// Regime classifier bands and per-regime weights
type Regime struct {
	Lookback              int                     `yaml:"lookback" json:"lookback"`
	UpperBand             float64                 `yaml:"upper_band" json:"upper_band"`
	LowerBand             float64                 `yaml:"lower_band" json:"lower_band"`
	Bull                  contracts.RegimeWeights `yaml:"bull" json:"bull"`
	Bear                  contracts.RegimeWeights `yaml:"bear" json:"bear"`
	Choppy                contracts.RegimeWeights `yaml:"choppy" json:"choppy"`
	UsePositionMultiplier bool                    `yaml:"use_position_multiplier" json:"use_position_multiplier"`
	PositionMultiplier    PositionMultiplier      `yaml:"position_multiplier" json:"position_multiplier"`
}

// PositionMultiplier scales total exposure per regime.
type PositionMultiplier struct {
	Bull   float64 `yaml:"bull" json:"bull"`
	Bear   float64 `yaml:"bear" json:"bear"`
	Choppy float64 `yaml:"choppy" json:"choppy"`
}

// Rebalance periodic turnover
type Rebalance struct {
	IntervalSessions int     `yaml:"interval_sessions" json:"interval_sessions"`
	BuyinCount       int     `yaml:"buyin_count" json:"buyin_count"`
	WatchCount       int     `yaml:"watch_count" json:"watch_count"`
	HardStopLoss     float64 `yaml:"hard_stop_loss" json:"hard_stop_loss"`   // e.g. -0.10
	MaxTotalAsset    float64 `yaml:"max_total_asset" json:"max_total_asset"` // 0 = no cap
	InitialCash      float64 `yaml:"initial_cash" json:"initial_cash"`       // simulated ledger seed
	Schedule         string  `yaml:"schedule" json:"schedule"`               // cron (with seconds)
}

// Intraday risk thresholds
type Intraday struct {
	ProfitTarget        float64       `yaml:"profit_target" json:"profit_target"`
	LossLimit           float64       `yaml:"loss_limit" json:"loss_limit"`
	TrailingDrawdown    float64       `yaml:"trailing_drawdown" json:"trailing_drawdown"`
	DipThreshold        float64       `yaml:"dip_threshold" json:"dip_threshold"`
	ReboundThreshold    float64       `yaml:"rebound_threshold" json:"rebound_threshold"`
	ATRMultiplier       float64       `yaml:"atr_multiplier" json:"atr_multiplier"`
	ATRPeriod           int           `yaml:"atr_period" json:"atr_period"`
	ATRFallbackPct      float64       `yaml:"atr_fallback_pct" json:"atr_fallback_pct"`
	BuyQuota            float64       `yaml:"buy_quota" json:"buy_quota"`
	DailyQuota          float64       `yaml:"daily_quota" json:"daily_quota"`
	SingleInstrumentCap float64       `yaml:"single_instrument_cap" json:"single_instrument_cap"`
	CircuitBreaker      float64       `yaml:"circuit_breaker" json:"circuit_breaker"`
	TickMaxAge          time.Duration `yaml:"tick_max_age" json:"tick_max_age"`
	ManageAllHoldings   bool          `yaml:"manage_all_holdings" json:"manage_all_holdings"`
	Watchlist           []string      `yaml:"watchlist" json:"watchlist"`
}

// Costs fees, slippage and lot size
type Costs struct {
	Slippage float64 `yaml:"slippage" json:"slippage"`
	FeeRate  float64 `yaml:"fee_rate" json:"fee_rate"`
	MinFee   float64 `yaml:"min_fee" json:"min_fee"`
	LotSize  int64   `yaml:"lot_size" json:"lot_size"`
}

// Loop polling cadence and session hours
type Loop struct {
	Interval           time.Duration `yaml:"interval" json:"interval"`
	Sessions           []Window      `yaml:"sessions" json:"sessions"`
	StateRetentionDays int           `yaml:"state_retention_days" json:"state_retention_days"`
}

// Window is an HH:MM range in exchange time.
type Window struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Default returns the baseline parameter set.
func Default() *Config {
	return &Config{
		Meta: Meta{
			StrategyID: "factor_loop",
			Version:    "1",
			Timezone:   "Asia/Shanghai",
			Market:     "SSE",
			Benchmark:  "000001.SH",
		},
		Factor: Factor{
			ShortWindow: 20,
			MidWindow:   60,
			ClipN:       3,
		},
		Regime: Regime{
			Lookback:              20,
			UpperBand:             1.02,
			LowerBand:             0.98,
			Bull:                  contracts.RegimeWeights{Fundamental: 0.3, Momentum: 0.5, Risk: 0.2},
			Bear:                  contracts.RegimeWeights{Fundamental: 0.3, Momentum: 0.3, Risk: 0.4},
			Choppy:                contracts.RegimeWeights{Fundamental: 0.4, Momentum: 0.4, Risk: 0.2},
			UsePositionMultiplier: true,
			PositionMultiplier:    PositionMultiplier{Bull: 1.0, Bear: 0.5, Choppy: 0.8},
		},
		Rebalance: Rebalance{
			IntervalSessions: 5,
			BuyinCount:       6,
			WatchCount:       10,
			HardStopLoss:     -0.10,
			InitialCash:      1_000_000,
			Schedule:         "0 50 14 * * 1-5",
		},
		Intraday: Intraday{
			ProfitTarget:        0.20,
			LossLimit:           -0.15,
			TrailingDrawdown:    0.005,
			DipThreshold:        -0.06,
			ReboundThreshold:    0.005,
			ATRMultiplier:       2,
			ATRPeriod:           14,
			ATRFallbackPct:      0.03,
			BuyQuota:            15000,
			DailyQuota:          30000,
			SingleInstrumentCap: 0.30,
			CircuitBreaker:      -0.025,
			TickMaxAge:          60 * time.Second,
		},
		Costs: Costs{
			Slippage: 0.002,
			FeeRate:  0.0001,
			MinFee:   5,
			LotSize:  100,
		},
		Loop: Loop{
			Interval: 5 * time.Second,
			Sessions: []Window{
				{Start: "09:30", End: "11:30"},
				{Start: "13:00", End: "15:00"},
			},
			StateRetentionDays: 10,
		},
	}
}

// WeightsFor returns the weight vector configured for r (choppy for unknown values).
func (c *Config) WeightsFor(r contracts.Regime) contracts.RegimeWeights {
	switch r {
	case contracts.RegimeBull:
		return c.Regime.Bull
	case contracts.RegimeBear:
		return c.Regime.Bear
	default:
		return c.Regime.Choppy
	}
}

// MultiplierFor returns the exposure multiplier for r, 1 when disabled.
func (c *Config) MultiplierFor(r contracts.Regime) float64 {
	if !c.Regime.UsePositionMultiplier {
		return 1
	}
	switch r {
	case contracts.RegimeBull:
		return c.Regime.PositionMultiplier.Bull
	case contracts.RegimeBear:
		return c.Regime.PositionMultiplier.Bear
	default:
		return c.Regime.PositionMultiplier.Choppy
	}
}

// Location resolves Meta.Timezone, falling back to a fixed UTC+8 zone.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Meta.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*3600)
}

// InSession reports whether t (any zone) falls inside a configured trading window.
func (c *Config) InSession(t time.Time) bool {
	local := t.In(c.Location())
	hhmm := local.Format("15:04")
	for _, w := range c.Loop.Sessions {
		if hhmm >= w.Start && hhmm < w.End {
			return true
		}
	}
	return false
}

// WatchSet is the configured intraday watchlist plus the strategy universe.
func (c *Config) WatchSet() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{c.Intraday.Watchlist, c.Meta.Universe} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
