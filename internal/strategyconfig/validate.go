package strategyconfig

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

var hhmmPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}
	if cfg.Meta.Benchmark == "" {
		return ValidationError{"meta.benchmark", "required"}
	}
	if _, err := time.LoadLocation(cfg.Meta.Timezone); err != nil {
		return ValidationError{"meta.timezone", err.Error()}
	}

	// === Factor ===
	f := cfg.Factor
	if f.ShortWindow < 2 {
		return ValidationError{"factor.short_window", "must be >= 2"}
	}
	if f.MidWindow <= f.ShortWindow {
		return ValidationError{"factor.mid_window", "must be > short_window"}
	}
	if f.ClipN <= 0 {
		return ValidationError{"factor.clip_n", "must be > 0"}
	}

	// === Regime ===
	r := cfg.Regime
	if r.Lookback < 1 {
		return ValidationError{"regime.lookback", "must be >= 1"}
	}
	if r.UpperBand < 1 || r.LowerBand > 1 || r.LowerBand <= 0 {
		return ValidationError{"regime", "bands must satisfy 0 < lower_band <= 1 <= upper_band"}
	}
	for name, w := range map[string]interface{ Validate() error }{
		"regime.bull":   r.Bull,
		"regime.bear":   r.Bear,
		"regime.choppy": r.Choppy,
	} {
		if err := w.Validate(); err != nil {
			return ValidationError{name, err.Error()}
		}
	}
	for name, m := range map[string]float64{
		"regime.position_multiplier.bull":   r.PositionMultiplier.Bull,
		"regime.position_multiplier.bear":   r.PositionMultiplier.Bear,
		"regime.position_multiplier.choppy": r.PositionMultiplier.Choppy,
	} {
		if err := validatePctRange(m, name); err != nil {
			return err
		}
	}

	// === Rebalance ===
	rb := cfg.Rebalance
	if rb.IntervalSessions < 1 {
		return ValidationError{"rebalance.interval_sessions", "must be >= 1"}
	}
	if rb.BuyinCount < 1 {
		return ValidationError{"rebalance.buyin_count", "must be >= 1"}
	}
	if rb.WatchCount < rb.BuyinCount {
		return ValidationError{"rebalance.watch_count", "must be >= buyin_count"}
	}
	if rb.HardStopLoss >= 0 {
		return ValidationError{"rebalance.hard_stop_loss", "must be < 0"}
	}
	if rb.MaxTotalAsset < 0 || rb.InitialCash < 0 {
		return ValidationError{"rebalance", "max_total_asset and initial_cash must be >= 0"}
	}
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow).Parse(rb.Schedule); err != nil {
		return ValidationError{"rebalance.schedule", err.Error()}
	}

	// === Intraday ===
	in := cfg.Intraday
	if in.ProfitTarget <= 0 {
		return ValidationError{"intraday.profit_target", "must be > 0"}
	}
	if in.LossLimit >= 0 {
		return ValidationError{"intraday.loss_limit", "must be < 0"}
	}
	if in.DipThreshold >= 0 {
		return ValidationError{"intraday.dip_threshold", "must be < 0"}
	}
	if in.TrailingDrawdown <= 0 || in.ReboundThreshold < 0 {
		return ValidationError{"intraday", "trailing_drawdown must be > 0 and rebound_threshold >= 0"}
	}
	if in.ATRPeriod < 1 || in.ATRMultiplier <= 0 || in.ATRFallbackPct <= 0 {
		return ValidationError{"intraday.atr", "period, multiplier and fallback must be positive"}
	}
	if in.BuyQuota <= 0 || in.DailyQuota < in.BuyQuota {
		return ValidationError{"intraday.daily_quota", "must be >= buy_quota > 0"}
	}
	if err := validatePctRange(in.SingleInstrumentCap, "intraday.single_instrument_cap"); err != nil {
		return err
	}
	if in.CircuitBreaker >= 0 {
		return ValidationError{"intraday.circuit_breaker", "must be < 0"}
	}
	if in.TickMaxAge <= 0 {
		return ValidationError{"intraday.tick_max_age", "must be > 0"}
	}

	// === Costs ===
	c := cfg.Costs
	if err := validatePctRange(c.Slippage, "costs.slippage"); err != nil {
		return err
	}
	if err := validatePctRange(c.FeeRate, "costs.fee_rate"); err != nil {
		return err
	}
	if c.MinFee < 0 {
		return ValidationError{"costs.min_fee", "must be >= 0"}
	}
	if c.LotSize < 1 {
		return ValidationError{"costs.lot_size", "must be >= 1"}
	}

	// === Loop ===
	if cfg.Loop.Interval <= 0 {
		return ValidationError{"loop.interval", "must be > 0"}
	}
	if len(cfg.Loop.Sessions) == 0 {
		return ValidationError{"loop.sessions", "required"}
	}
	for i, w := range cfg.Loop.Sessions {
		field := fmt.Sprintf("loop.sessions[%d]", i)
		if err := validateHHMM(w.Start); err != nil {
			return ValidationError{field + ".start", err.Error()}
		}
		if err := validateHHMM(w.End); err != nil {
			return ValidationError{field + ".end", err.Error()}
		}
		if w.Start >= w.End {
			return ValidationError{field, "start must be before end"}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if len(cfg.Meta.Universe) < cfg.Rebalance.WatchCount {
		warnings = append(warnings, Warning{
			Code:    "SMALL_UNIVERSE",
			Message: fmt.Sprintf("universe has %d instruments, fewer than watch_count=%d", len(cfg.Meta.Universe), cfg.Rebalance.WatchCount),
		})
	}

	if cfg.Intraday.BuyQuota > cfg.Intraday.SingleInstrumentCap*cfg.Rebalance.InitialCash && cfg.Rebalance.InitialCash > 0 {
		warnings = append(warnings, Warning{
			Code:    "QUOTA_ABOVE_CAP",
			Message: "buy_quota exceeds single_instrument_cap of initial cash: every dip buy will be rejected",
		})
	}

	if cfg.Costs.Slippage == 0 {
		warnings = append(warnings, Warning{
			Code:    "ZERO_SLIPPAGE",
			Message: "slippage = 0: simulated fills are optimistic",
		})
	}

	return warnings
}

func validateHHMM(s string) error {
	if !hhmmPattern.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}

// validatePctRange checks 0 <= pct <= 1
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
