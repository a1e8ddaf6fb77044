// Package tradelog appends executed trades to CSV and, optionally, Postgres.
package tradelog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/wonny/factorloop/internal/contracts"
)

// Sink receives every executed trade.
type Sink interface {
	Record(ctx context.Context, rec contracts.TradeRecord) error
}

// Normalize rounds money fields: prices and cost basis to 4 places, P&L to 2.
func Normalize(rec contracts.TradeRecord) contracts.TradeRecord {
	rec.Price = round(rec.Price, 4)
	rec.CostBasis = round(rec.CostBasis, 4)
	rec.RealizedPnL = round(rec.RealizedPnL, 2)
	return rec
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// RealizedPnL is (price - cost) * volume net of fee, computed in decimal.
func RealizedPnL(price, cost float64, volume int64, fee float64) float64 {
	pnl := decimal.NewFromFloat(price).
		Sub(decimal.NewFromFloat(cost)).
		Mul(decimal.NewFromInt(volume)).
		Sub(decimal.NewFromFloat(fee)).
		Round(2)
	f, _ := pnl.Float64()
	return f
}

// Multi fans a record out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, rec contracts.TradeRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
