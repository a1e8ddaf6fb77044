package position

import (
	"context"
	"sort"

	"github.com/wonny/factorloop/internal/contracts"
)

// Live reads positions and cash through the order gateway.
type Live struct {
	gateway contracts.OrderGateway
}

// NewLive creates a gateway-backed source
func NewLive(gateway contracts.OrderGateway) *Live {
	return &Live{gateway: gateway}
}

func (l *Live) Position(ctx context.Context, id string) (contracts.Position, error) {
	positions, err := l.gateway.QueryPositions(ctx)
	if err != nil {
		return contracts.Position{}, err
	}
	for _, p := range positions {
		if p.InstrumentID == id {
			return p, nil
		}
	}
	return contracts.Position{InstrumentID: id}, nil
}

func (l *Live) Positions(ctx context.Context) ([]contracts.Position, error) {
	positions, err := l.gateway.QueryPositions(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]contracts.Position, 0, len(positions))
	for _, p := range positions {
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out, nil
}

func (l *Live) HeldInstruments(ctx context.Context) ([]string, error) {
	positions, err := l.Positions(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(positions))
	for i, p := range positions {
		ids[i] = p.InstrumentID
	}
	return ids, nil
}

func (l *Live) CashAndTotalAsset(ctx context.Context) (contracts.Account, error) {
	return l.gateway.QueryAccount(ctx)
}

// ApplyFill is a no-op: the broker is authoritative.
func (l *Live) ApplyFill(context.Context, contracts.Fill) error {
	return nil
}
