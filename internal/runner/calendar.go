package runner

import (
	"context"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
)

// calendarLookback covers long holidays when searching the last trading day.
const calendarLookback = 20

// tradingDate resolves the exchange trading date for now. The calendar is
// authoritative: a local date that is not a trading day returns ok=false.
// Without a calendar the local exchange date is used. Calendar entries are
// DATE values, so they are keyed by their own year/month/day.
func (r *Runner) tradingDate(ctx context.Context, now time.Time) (string, bool) {
	loc := r.cfg.Location()
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	key := today.Format(contracts.DateLayout)

	days, err := r.provider.TradingCalendar(ctx, r.cfg.Meta.Market, today.AddDate(0, 0, -calendarLookback), today.AddDate(0, 0, 1))
	if err != nil || len(days) == 0 {
		r.logger.WithError(err).WithField("date", key).Warn("Trading calendar unavailable, using local date")
		return key, true
	}

	for _, d := range days {
		if d.Format(contracts.DateLayout) == key {
			return key, true
		}
	}
	return key, false
}
