package contracts

import "time"

// Side represents buy or sell
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus represents order status
type OrderStatus string

const (
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusPartial   OrderStatus = "PARTIAL"
	StatusFilled    OrderStatus = "FILLED"
	StatusCanceled  OrderStatus = "CANCELED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Order is a gateway order as reported by QueryOpenOrders / QueryOrdersToday.
type Order struct {
	ID           string      `json:"id"`
	InstrumentID string      `json:"instrument_id"`
	Side         Side        `json:"side"`
	Volume       int64       `json:"volume"`
	Price        float64     `json:"price"`
	Status       OrderStatus `json:"status"`
	SubmittedAt  time.Time   `json:"submitted_at"`
}

// IsOpen reports an order that may still fill.
func (o Order) IsOpen() bool {
	return o.Status == StatusSubmitted || o.Status == StatusPartial
}

// ReasonTag is the enumerated cause of a trade intent.
type ReasonTag string

const (
	ReasonTakeProfit   ReasonTag = "take_profit"
	ReasonStopLoss     ReasonTag = "stop_loss"
	ReasonTrailingStop ReasonTag = "trailing_stop"
	ReasonATRStop      ReasonTag = "atr_stop"
	ReasonDipBuy       ReasonTag = "dip_buy"
	ReasonRebalanceOut ReasonTag = "rebalance_out"
	ReasonRebalanceIn  ReasonTag = "rebalance_in"
	ReasonHardStop     ReasonTag = "hard_stop"
)

// Rebalance reports a reason raised by the rebalance engine.
func (r ReasonTag) Rebalance() bool {
	return r == ReasonRebalanceIn || r == ReasonRebalanceOut || r == ReasonHardStop
}

// TradeIntent is produced by the rebalance and intraday engines and consumed by the executor.
// ⭐ SSOT: 엔진 → 주문 게이트웨이 경계, 트레이드 로그 외에는 저장하지 않음
type TradeIntent struct {
	InstrumentID   string    `json:"instrument_id"`
	Side           Side      `json:"side"`
	Volume         int64     `json:"volume"`
	ReferencePrice float64   `json:"reference_price"`
	Reason         ReasonTag `json:"reason"`
	Note           string    `json:"note"`
}

// TradeRecord is one append-only trade log entry.
type TradeRecord struct {
	InstrumentID string    `json:"instrument_id"`
	Timestamp    time.Time `json:"timestamp"`
	Side         Side      `json:"side"`
	Volume       int64     `json:"volume"`
	Price        float64   `json:"price"`
	CostBasis    float64   `json:"cost_basis"`
	RealizedPnL  float64   `json:"realized_pnl"`
	Reason       ReasonTag `json:"reason"`
	OrderID      string    `json:"order_id"`
}
