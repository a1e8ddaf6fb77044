package contracts

import "time"

// FactorRecord is the raw factor vector of one instrument on one evaluation date.
// ⭐ SSOT: FactorEngine 출력, 생성 후 수정 금지
type FactorRecord struct {
	InstrumentID  string    `json:"instrument_id"`
	Date          time.Time `json:"date"`
	Valuation     float64   `json:"valuation"` // PE, 999 when EPS <= 0
	Quality       float64   `json:"quality"`   // ROE, -99 when absent
	MomentumShort float64   `json:"momentum_short"`
	MomentumMid   float64   `json:"momentum_mid"`
	Volatility    float64   `json:"volatility"`
	Bias          float64   `json:"bias"`
}

// CompositeScore is one ranked instrument.
type CompositeScore struct {
	InstrumentID string       `json:"instrument_id"`
	Rank         int          `json:"rank"` // 1-based
	Total        float64      `json:"total"`
	Fundamental  float64      `json:"fundamental"`
	Momentum     float64      `json:"momentum"`
	Risk         float64      `json:"risk"`
	Factors      FactorRecord `json:"factors"`
}

// Ranking is an ordered list of composite scores, best first.
type Ranking []CompositeScore

// Top returns the ids of the first n entries.
func (r Ranking) Top(n int) []string {
	if n > len(r) {
		n = len(r)
	}
	if n < 0 {
		n = 0
	}
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = r[i].InstrumentID
	}
	return ids
}

// IDs returns every ranked id in order.
func (r Ranking) IDs() []string {
	return r.Top(len(r))
}
