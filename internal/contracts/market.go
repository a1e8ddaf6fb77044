package contracts

import (
	"math"
	"time"
)

// DateLayout is the calendar key format used across state files and logs.
const DateLayout = "2006-01-02"

// Price-limit detection
const (
	LimitTolerance  = 0.03  // distance to the exchange limit price treated as locked
	DefaultLimitPct = 0.095 // fallback when the feed does not publish limit prices
)

// Tick is the latest quote returned by MarketDataProvider.LatestTick.
type Tick struct {
	LastPrice float64   `json:"last_price"`
	PrevClose float64   `json:"prev_close"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Bid1      float64   `json:"bid1"`
	Ask1      float64   `json:"ask1"`
	UpLimit   float64   `json:"up_limit"`   // 0 if unknown
	DownLimit float64   `json:"down_limit"` // 0 if unknown
	Timestamp time.Time `json:"timestamp"`
}

// Instrument is the per-cycle view of one tradable instrument.
// ⭐ SSOT: 매 폴링 주기마다 새로 만들어지며 수정하지 않음
type Instrument struct {
	ID        string    `json:"id"`
	LastPrice float64   `json:"last_price"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Open      float64   `json:"open"`
	PrevClose float64   `json:"prev_close"`
	Bid1      float64   `json:"bid1"`
	Ask1      float64   `json:"ask1"`
	Halted    bool      `json:"halted"`
	LimitUp   bool      `json:"limit_up"`
	LimitDown bool      `json:"limit_down"`
	Timestamp time.Time `json:"timestamp"`
}

// NewInstrument derives tradability flags from a tick.
func NewInstrument(id string, t Tick) Instrument {
	inst := Instrument{
		ID:        id,
		LastPrice: t.LastPrice,
		High:      t.High,
		Low:       t.Low,
		Open:      t.Open,
		PrevClose: t.PrevClose,
		Bid1:      t.Bid1,
		Ask1:      t.Ask1,
		Timestamp: t.Timestamp,
		Halted:    t.LastPrice <= 0,
	}
	if inst.Halted {
		return inst
	}

	if t.UpLimit > 0 {
		inst.LimitUp = math.Abs(t.LastPrice-t.UpLimit) < LimitTolerance
	} else if t.PrevClose > 0 {
		inst.LimitUp = t.LastPrice >= t.PrevClose*(1+DefaultLimitPct)
	}

	if t.DownLimit > 0 {
		inst.LimitDown = math.Abs(t.LastPrice-t.DownLimit) < LimitTolerance
	} else if t.PrevClose > 0 {
		inst.LimitDown = t.LastPrice <= t.PrevClose*(1-DefaultLimitPct)
	}
	return inst
}

// DayReturn is last/prev_close - 1, or 0 without a previous close.
func (i Instrument) DayReturn() float64 {
	if i.PrevClose <= 0 {
		return 0
	}
	return i.LastPrice/i.PrevClose - 1
}

// OneTickLocked reports a session that traded at a single price (high == low).
func (i Instrument) OneTickLocked() bool {
	return i.High > 0 && i.High == i.Low
}

// Bar is one OHLC session.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// PriceWindow is an ordered (oldest first) history for one instrument.
type PriceWindow struct {
	InstrumentID string `json:"instrument_id"`
	Bars         []Bar  `json:"bars"`
}

// Len returns the number of sessions in the window
func (w PriceWindow) Len() int {
	return len(w.Bars)
}

// Closes returns the close series.
func (w PriceWindow) Closes() []float64 {
	out := make([]float64, len(w.Bars))
	for i, b := range w.Bars {
		out[i] = b.Close
	}
	return out
}

// ValidCloses returns closes with non-positive values dropped.
func (w PriceWindow) ValidCloses() []float64 {
	out := make([]float64, 0, len(w.Bars))
	for _, b := range w.Bars {
		if b.Close > 0 && !math.IsNaN(b.Close) {
			out = append(out, b.Close)
		}
	}
	return out
}

// Last returns the most recent bar and false on an empty window.
func (w PriceWindow) Last() (Bar, bool) {
	if len(w.Bars) == 0 {
		return Bar{}, false
	}
	return w.Bars[len(w.Bars)-1], true
}

// Before returns a window truncated to bars dated strictly before t.
func (w PriceWindow) Before(t time.Time) PriceWindow {
	cut := len(w.Bars)
	for cut > 0 && !w.Bars[cut-1].Date.Before(t) {
		cut--
	}
	return PriceWindow{InstrumentID: w.InstrumentID, Bars: w.Bars[:cut]}
}

// FundamentalSnapshot is one disclosed set of per-share figures.
type FundamentalSnapshot struct {
	InstrumentID      string    `json:"instrument_id"`
	AnnouncedAt       time.Time `json:"announced_at"`
	EPS               float64   `json:"eps"`
	BookValuePerShare float64   `json:"book_value_per_share"`
	ROE               *float64  `json:"roe,omitempty"` // nil when not disclosed
}

// LatestBefore picks the newest snapshot announced strictly before t.
func LatestBefore(snaps []FundamentalSnapshot, t time.Time) (FundamentalSnapshot, bool) {
	var (
		best  FundamentalSnapshot
		found bool
	)
	for _, s := range snaps {
		if !s.AnnouncedAt.Before(t) {
			continue
		}
		if !found || s.AnnouncedAt.After(best.AnnouncedAt) {
			best = s
			found = true
		}
	}
	return best, found
}
