package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/position"
)

// Paper fills every order immediately and reports holdings and the day's
// orders from the simulated ledger.
// ⭐ SSOT: 시뮬레이션 모드 주문 처리는 여기서만
type Paper struct {
	ledger *position.Simulated
	loc    *time.Location
	now    func() time.Time
}

// NewPaper creates a paper gateway over ledger. Orders are bucketed by day in loc.
func NewPaper(ledger *position.Simulated, loc *time.Location) *Paper {
	if loc == nil {
		loc = time.UTC
	}
	return &Paper{ledger: ledger, loc: loc, now: time.Now}
}

// SetClock overrides the time source
func (p *Paper) SetClock(now func() time.Time) {
	p.now = now
}

func (p *Paper) Submit(_ context.Context, id string, side contracts.Side, volume int64, priceHint float64) (string, error) {
	if volume <= 0 || priceHint <= 0 {
		return "", fmt.Errorf("paper order %s %d@%.4f: %w", id, volume, priceHint, contracts.ErrInvalidQuote)
	}

	order := contracts.Order{
		ID:           uuid.NewString(),
		InstrumentID: id,
		Side:         side,
		Volume:       volume,
		Price:        priceHint,
		Status:       contracts.StatusFilled,
		SubmittedAt:  p.now(),
	}
	p.ledger.RecordOrder(order, p.loc)
	return order.ID, nil
}

func (p *Paper) QueryPositions(ctx context.Context) ([]contracts.Position, error) {
	return p.ledger.Positions(ctx)
}

func (p *Paper) QueryAccount(ctx context.Context) (contracts.Account, error) {
	return p.ledger.CashAndTotalAsset(ctx)
}

// QueryOpenOrders is always empty: paper orders fill on submit.
func (p *Paper) QueryOpenOrders(context.Context) ([]contracts.Order, error) {
	return nil, nil
}

func (p *Paper) QueryOrdersToday(context.Context) ([]contracts.Order, error) {
	today := p.now().In(p.loc).Format(contracts.DateLayout)
	var out []contracts.Order
	for _, o := range p.ledger.Orders() {
		if o.SubmittedAt.In(p.loc).Format(contracts.DateLayout) == today {
			out = append(out, o)
		}
	}
	return out, nil
}
