package runner

import (
	"context"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
)

// recoverDaily rebuilds the day's buy total and trade flags from the
// gateway's orders when no daily file could be resumed. Buys stay suspended
// until the orders can be read. Caller holds opMu.
func (r *Runner) recoverDaily(ctx context.Context) {
	orders, err := r.gateway.QueryOrdersToday(ctx)
	if err != nil {
		if !r.rt.BuysSuspended {
			r.logger.WithError(err).WithField("date", r.rt.Date).Warn("Today's orders unavailable, buys suspended")
		}
		r.rt.BuysSuspended = true
		return
	}

	rebuilt := dailyFromOrders(r.rt.Date, orders, r.cfg.Location())
	mergeDaily(r.rt.Daily, rebuilt)
	if r.rt.BuysSuspended {
		r.logger.WithField("date", r.rt.Date).Info("Today's orders readable again, buys resumed")
	}
	r.rt.BuysSuspended = false

	if len(rebuilt.Instruments) > 0 {
		r.logger.WithFields(map[string]interface{}{
			"date":        r.rt.Date,
			"orders":      len(orders),
			"instruments": len(rebuilt.Instruments),
			"spent":       r.rt.Daily.CumulativeBuyAmount,
		}).Info("Daily state rebuilt from orders")
	}
}

// dailyFromOrders counts every live or filled order submitted on date.
// Rebalance buys are included, so the rebuilt quota can only be overstated.
func dailyFromOrders(date string, orders []contracts.Order, loc *time.Location) *contracts.DailyRiskState {
	d := contracts.NewDailyRiskState(date)
	for _, o := range orders {
		if o.Status == contracts.StatusCanceled || o.Status == contracts.StatusRejected {
			continue
		}
		if !o.SubmittedAt.IsZero() && o.SubmittedAt.In(loc).Format(contracts.DateLayout) != date {
			continue
		}
		switch o.Side {
		case contracts.SideBuy:
			d.RecordBuy(o.InstrumentID, float64(o.Volume)*o.Price)
		case contracts.SideSell:
			d.RecordSell(o.InstrumentID)
		}
	}
	return d
}

// mergeDaily folds rebuilt into d, keeping the larger buy total.
func mergeDaily(d, rebuilt *contracts.DailyRiskState) {
	if rebuilt.CumulativeBuyAmount > d.CumulativeBuyAmount {
		d.CumulativeBuyAmount = rebuilt.CumulativeBuyAmount
	}
	if d.Instruments == nil {
		d.Instruments = make(map[string]contracts.InstrumentFlags)
	}
	for id, f := range rebuilt.Instruments {
		cur := d.Instruments[id]
		cur.Bought = cur.Bought || f.Bought
		cur.Sold = cur.Sold || f.Sold
		d.Instruments[id] = cur
	}
}
