package execution

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/strategyconfig"
)

// Fee is max(min_fee, notional * fee_rate), rounded to cents.
func Fee(notional float64, c strategyconfig.Costs) float64 {
	fee := decimal.NewFromFloat(notional).Mul(decimal.NewFromFloat(c.FeeRate))
	if floor := decimal.NewFromFloat(c.MinFee); fee.LessThan(floor) {
		fee = floor
	}
	f, _ := fee.Round(2).Float64()
	return f
}

// SlippagePrice moves ref against the trader: up for buys, down for sells.
func SlippagePrice(ref float64, side contracts.Side, slippage float64) float64 {
	if side == contracts.SideBuy {
		return ref * (1 + slippage)
	}
	return ref * (1 - slippage)
}

// FillPrice prefers the touch (ask for buys, bid for sells) and falls back to
// the slippage-adjusted reference price.
func FillPrice(ref float64, side contracts.Side, tick contracts.Tick, slippage float64) float64 {
	switch {
	case side == contracts.SideSell && tick.Bid1 > 0:
		return tick.Bid1
	case side == contracts.SideBuy && tick.Ask1 > 0:
		return tick.Ask1
	}
	return SlippagePrice(ref, side, slippage)
}

// IntentPrice is the execution price of intent: rebalance trades always pay
// the configured slippage, intraday trades prefer the touch.
func IntentPrice(intent contracts.TradeIntent, tick contracts.Tick, slippage float64) float64 {
	if intent.Reason.Rebalance() {
		return SlippagePrice(intent.ReferencePrice, intent.Side, slippage)
	}
	return FillPrice(intent.ReferencePrice, intent.Side, tick, slippage)
}

// LotVolume is the largest whole-lot volume whose notional at price fits amount.
func LotVolume(amount, price float64, lot int64) int64 {
	if amount <= 0 || price <= 0 {
		return 0
	}
	if lot <= 0 {
		lot = 1
	}
	lots := int64(math.Floor(amount / price / float64(lot)))
	return lots * lot
}
