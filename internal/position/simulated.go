package position

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/pkg/logger"
)

// Holding is one simulated position.
type Holding struct {
	Volume   int64   `json:"volume"`
	AvgCost  float64 `json:"avg_cost"`
	LastMark float64 `json:"last_mark"`
}

// Ledger is the persisted simulated account.
type Ledger struct {
	Cash      float64             `json:"cash"`
	Positions map[string]*Holding `json:"positions"`
	Orders    []contracts.Order   `json:"orders,omitempty"` // latest trading day only
	UpdatedAt time.Time           `json:"updated_at"`
}

// NewLedger starts a ledger with cash and no positions.
func NewLedger(cash float64) Ledger {
	return Ledger{Cash: cash, Positions: make(map[string]*Holding)}
}

func (l Ledger) clone() Ledger {
	out := Ledger{Cash: l.Cash, UpdatedAt: l.UpdatedAt, Positions: make(map[string]*Holding, len(l.Positions))}
	for id, h := range l.Positions {
		c := *h
		out.Positions[id] = &c
	}
	out.Orders = append([]contracts.Order(nil), l.Orders...)
	return out
}

// LedgerSaver persists the ledger after every fill.
type LedgerSaver interface {
	Save(Ledger) error
}

// Simulated is a local ledger driven by ApplyFill.
// ⭐ SSOT: 시뮬레이션 모드의 현금/보유 수량은 여기서만 변경
type Simulated struct {
	mu     sync.RWMutex
	ledger Ledger
	saver  LedgerSaver
	logger *logger.Logger
}

// NewSimulated wraps ledger. saver may be nil (in-memory only).
func NewSimulated(ledger Ledger, saver LedgerSaver, log *logger.Logger) *Simulated {
	if ledger.Positions == nil {
		ledger.Positions = make(map[string]*Holding)
	}
	return &Simulated{ledger: ledger, saver: saver, logger: log.WithComponent("position")}
}

func (s *Simulated) positionLocked(id string) contracts.Position {
	h, ok := s.ledger.Positions[id]
	if !ok || h.Volume <= 0 {
		return contracts.Position{InstrumentID: id}
	}
	mark := h.LastMark
	if mark <= 0 {
		mark = h.AvgCost
	}
	return contracts.Position{
		InstrumentID: id,
		Volume:       h.Volume,
		AvgCost:      h.AvgCost,
		MarketValue:  float64(h.Volume) * mark,
	}
}

func (s *Simulated) Position(_ context.Context, id string) (contracts.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positionLocked(id), nil
}

func (s *Simulated) Positions(_ context.Context) ([]contracts.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.Position, 0, len(s.ledger.Positions))
	for _, id := range s.heldLocked() {
		out = append(out, s.positionLocked(id))
	}
	return out, nil
}

func (s *Simulated) heldLocked() []string {
	ids := make([]string, 0, len(s.ledger.Positions))
	for id, h := range s.ledger.Positions {
		if h.Volume > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Simulated) HeldInstruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heldLocked(), nil
}

func (s *Simulated) CashAndTotalAsset(_ context.Context) (contracts.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := s.ledger.Cash
	for _, id := range s.heldLocked() {
		total += s.positionLocked(id).MarketValue
	}
	return contracts.Account{Cash: s.ledger.Cash, TotalAsset: total}, nil
}

// Mark updates the valuation price of a held instrument.
func (s *Simulated) Mark(id string, price float64) {
	if price <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.ledger.Positions[id]; ok {
		h.LastMark = price
	}
}

// Snapshot returns a copy of the ledger.
func (s *Simulated) Snapshot() Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.clone()
}

// RecordOrder appends o to the ledger's order book. Orders from an earlier
// day (in loc) are dropped. The book is saved with the next fill.
func (s *Simulated) RecordOrder(o contracts.Order, loc *time.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := o.SubmittedAt.In(loc).Format(contracts.DateLayout)
	kept := s.ledger.Orders[:0]
	for _, prev := range s.ledger.Orders {
		if prev.SubmittedAt.In(loc).Format(contracts.DateLayout) == day {
			kept = append(kept, prev)
		}
	}
	s.ledger.Orders = append(kept, o)
}

// Orders returns a copy of the recorded orders.
func (s *Simulated) Orders() []contracts.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.Order(nil), s.ledger.Orders...)
}

// ApplyFill books a fill. The in-memory ledger is always updated; a failed save
// is returned wrapped in ErrStatePersistence.
func (s *Simulated) ApplyFill(_ context.Context, fill contracts.Fill) error {
	if fill.Volume <= 0 || fill.Price <= 0 {
		return fmt.Errorf("fill %s %d@%.4f: %w", fill.InstrumentID, fill.Volume, fill.Price, contracts.ErrInvalidQuote)
	}

	s.mu.Lock()
	h, ok := s.ledger.Positions[fill.InstrumentID]
	if !ok {
		h = &Holding{}
	}

	switch fill.Side {
	case contracts.SideBuy:
		cost := float64(h.Volume)*h.AvgCost + fill.Notional()
		h.Volume += fill.Volume
		h.AvgCost = cost / float64(h.Volume)
		h.LastMark = fill.Price
		s.ledger.Positions[fill.InstrumentID] = h
		s.ledger.Cash -= fill.Notional() + fill.Fee

	case contracts.SideSell:
		if !ok || h.Volume <= 0 {
			s.mu.Unlock()
			return fmt.Errorf("sell %s: nothing held: %w", fill.InstrumentID, contracts.ErrInvalidQuote)
		}
		volume := fill.Volume
		if volume > h.Volume {
			s.logger.WithInstrument(fill.InstrumentID).WithFields(map[string]interface{}{
				"held":      h.Volume,
				"requested": fill.Volume,
			}).Warn("Sell exceeds holding, clamped")
			volume = h.Volume
		}
		h.Volume -= volume
		s.ledger.Cash += float64(volume)*fill.Price - fill.Fee
		if h.Volume <= 0 {
			delete(s.ledger.Positions, fill.InstrumentID)
		} else {
			h.LastMark = fill.Price
		}

	default:
		s.mu.Unlock()
		return fmt.Errorf("unknown side %q", fill.Side)
	}

	s.ledger.UpdatedAt = time.Now()
	snapshot := s.ledger.clone()
	s.mu.Unlock()

	if s.saver == nil {
		return nil
	}
	if err := s.saver.Save(snapshot); err != nil {
		return fmt.Errorf("save ledger: %v: %w", err, contracts.ErrStatePersistence)
	}
	return nil
}
