// Package position answers "what do we hold and how much cash is there".
package position

import (
	"context"

	"github.com/wonny/factorloop/internal/contracts"
)

// Source is the position view used by the engines and the executor.
type Source interface {
	// Position returns the holding for id; unknown instruments yield a zero Position.
	Position(ctx context.Context, id string) (contracts.Position, error)
	Positions(ctx context.Context) ([]contracts.Position, error)
	HeldInstruments(ctx context.Context) ([]string, error)
	CashAndTotalAsset(ctx context.Context) (contracts.Account, error)
	ApplyFill(ctx context.Context, fill contracts.Fill) error
}

// Marker is implemented by sources that value holdings from observed prices.
type Marker interface {
	Mark(id string, price float64)
}

// HeldSet returns the held instruments as a lookup set.
func HeldSet(ctx context.Context, src Source) (map[string]bool, error) {
	ids, err := src.HeldInstruments(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(ids))
	for _, id := range ids {
		held[id] = true
	}
	return held, nil
}
