// Package contractstest provides in-memory MarketDataProvider and OrderGateway fakes.
package contractstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
)

// Provider is a map-backed MarketDataProvider.
type Provider struct {
	mu        sync.Mutex
	Ticks     map[string]contracts.Tick
	Windows   map[string]contracts.PriceWindow
	Snapshots map[string][]contracts.FundamentalSnapshot
	Calendar  []time.Time
	Errs      map[string]error // per-instrument failure
	Calls     map[string]int
}

// NewProvider returns an empty provider.
func NewProvider() *Provider {
	return &Provider{
		Ticks:     make(map[string]contracts.Tick),
		Windows:   make(map[string]contracts.PriceWindow),
		Snapshots: make(map[string][]contracts.FundamentalSnapshot),
		Errs:      make(map[string]error),
		Calls:     make(map[string]int),
	}
}

func (p *Provider) touch(op, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls[op]++
	return p.Errs[id]
}

func (p *Provider) LatestTick(_ context.Context, id string) (contracts.Tick, error) {
	if err := p.touch("tick", id); err != nil {
		return contracts.Tick{}, err
	}
	t, ok := p.Ticks[id]
	if !ok {
		return contracts.Tick{}, fmt.Errorf("tick %s: %w", id, contracts.ErrDataUnavailable)
	}
	return t, nil
}

func (p *Provider) PriceWindow(_ context.Context, id, _ string, count int) (contracts.PriceWindow, error) {
	if err := p.touch("window", id); err != nil {
		return contracts.PriceWindow{}, err
	}
	w, ok := p.Windows[id]
	if !ok {
		return contracts.PriceWindow{}, fmt.Errorf("window %s: %w", id, contracts.ErrDataUnavailable)
	}
	if count > 0 && len(w.Bars) > count {
		w.Bars = w.Bars[len(w.Bars)-count:]
	}
	return w, nil
}

func (p *Provider) Fundamentals(_ context.Context, id string) ([]contracts.FundamentalSnapshot, error) {
	if err := p.touch("fundamentals", id); err != nil {
		return nil, err
	}
	return p.Snapshots[id], nil
}

func (p *Provider) TradingCalendar(_ context.Context, _ string, start, end time.Time) ([]time.Time, error) {
	if err := p.touch("calendar", ""); err != nil {
		return nil, err
	}
	var out []time.Time
	for _, d := range p.Calendar {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

// SetCloses installs a daily window built from closes, one session per day ending at end.
func (p *Provider) SetCloses(id string, end time.Time, closes ...float64) {
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{
			Date:  end.AddDate(0, 0, i-len(closes)+1),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	p.Windows[id] = contracts.PriceWindow{InstrumentID: id, Bars: bars}
}

// Gateway is an in-memory OrderGateway that records submissions.
type Gateway struct {
	mu         sync.Mutex
	Positions  []contracts.Position
	Account    contracts.Account
	OpenOrders []contracts.Order
	Submitted  []contracts.Order
	SubmitErr  error
	QueryErr   error
	seq        int
}

func (g *Gateway) Submit(_ context.Context, id string, side contracts.Side, volume int64, price float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.SubmitErr != nil {
		return "", g.SubmitErr
	}
	g.seq++
	orderID := fmt.Sprintf("ord-%d", g.seq)
	g.Submitted = append(g.Submitted, contracts.Order{
		ID:           orderID,
		InstrumentID: id,
		Side:         side,
		Volume:       volume,
		Price:        price,
		Status:       contracts.StatusFilled,
		SubmittedAt:  time.Now(),
	})
	return orderID, nil
}

func (g *Gateway) QueryPositions(context.Context) ([]contracts.Position, error) {
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	return append([]contracts.Position(nil), g.Positions...), nil
}

func (g *Gateway) QueryAccount(context.Context) (contracts.Account, error) {
	if g.QueryErr != nil {
		return contracts.Account{}, g.QueryErr
	}
	return g.Account, nil
}

func (g *Gateway) QueryOpenOrders(context.Context) ([]contracts.Order, error) {
	if g.QueryErr != nil {
		return nil, g.QueryErr
	}
	return append([]contracts.Order(nil), g.OpenOrders...), nil
}

func (g *Gateway) QueryOrdersToday(context.Context) ([]contracts.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append(append([]contracts.Order(nil), g.Submitted...), g.OpenOrders...), nil
}
