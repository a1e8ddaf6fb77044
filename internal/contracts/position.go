package contracts

import (
	"encoding/json"
	"sort"
)

// Position is the holding of one instrument.
type Position struct {
	InstrumentID string  `json:"instrument_id"`
	Volume       int64   `json:"volume"`
	AvgCost      float64 `json:"avg_cost"`
	MarketValue  float64 `json:"market_value"`
}

// IsFlat reports a zero volume.
func (p Position) IsFlat() bool {
	return p.Volume <= 0
}

// Return is the total return against average cost at price.
func (p Position) Return(price float64) float64 {
	if p.AvgCost <= 0 {
		return 0
	}
	return price/p.AvgCost - 1
}

// Account holds cash and total asset as reported by the position source.
type Account struct {
	Cash       float64 `json:"cash"`
	TotalAsset float64 `json:"total_asset"`
}

// Fill is a confirmed execution applied to a position source.
type Fill struct {
	InstrumentID string  `json:"instrument_id"`
	Side         Side    `json:"side"`
	Volume       int64   `json:"volume"`
	Price        float64 `json:"price"`
	Fee          float64 `json:"fee"`
}

// Notional is volume * price.
func (f Fill) Notional() float64 {
	return float64(f.Volume) * f.Price
}

// ManagedSet is the set of instruments the strategy itself opened.
// ⭐ SSOT: 항상 실제 보유 종목의 부분집합이어야 함
type ManagedSet struct {
	ids map[string]struct{}
}

// NewManagedSet builds a set from ids.
func NewManagedSet(ids ...string) *ManagedSet {
	m := &ManagedSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		m.ids[id] = struct{}{}
	}
	return m
}

func (m *ManagedSet) Add(id string) {
	if m.ids == nil {
		m.ids = make(map[string]struct{})
	}
	m.ids[id] = struct{}{}
}

func (m *ManagedSet) Remove(id string) {
	delete(m.ids, id)
}

func (m ManagedSet) Has(id string) bool {
	_, ok := m.ids[id]
	return ok
}

func (m ManagedSet) Len() int {
	return len(m.ids)
}

// IDs returns the members sorted.
func (m ManagedSet) IDs() []string {
	out := make([]string, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reconcile drops members not present in held and returns what was removed.
func (m *ManagedSet) Reconcile(held map[string]bool) []string {
	var removed []string
	for _, id := range m.IDs() {
		if !held[id] {
			delete(m.ids, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// MarshalJSON persists the set as a sorted list.
func (m ManagedSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.IDs())
}

// UnmarshalJSON reads a list of ids.
func (m *ManagedSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*m = *NewManagedSet(ids...)
	return nil
}
