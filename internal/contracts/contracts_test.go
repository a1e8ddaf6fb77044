package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstrument_LimitFlags(t *testing.T) {
	tests := []struct {
		name          string
		tick          Tick
		wantHalted    bool
		wantLimitUp   bool
		wantLimitDown bool
	}{
		{"normal", Tick{LastPrice: 10.2, PrevClose: 10}, false, false, false},
		{"halted", Tick{LastPrice: 0, PrevClose: 10}, true, false, false},
		{"published up limit", Tick{LastPrice: 10.99, PrevClose: 10, UpLimit: 11.0}, false, true, false},
		{"published down limit", Tick{LastPrice: 9.02, PrevClose: 10, DownLimit: 9.0}, false, false, true},
		{"fallback up", Tick{LastPrice: 10.96, PrevClose: 10}, false, true, false},
		{"fallback down", Tick{LastPrice: 9.04, PrevClose: 10}, false, false, true},
		{"near but outside published limit", Tick{LastPrice: 10.9, PrevClose: 10, UpLimit: 11.0}, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := NewInstrument("600000.SH", tt.tick)
			assert.Equal(t, tt.wantHalted, inst.Halted)
			assert.Equal(t, tt.wantLimitUp, inst.LimitUp)
			assert.Equal(t, tt.wantLimitDown, inst.LimitDown)
		})
	}
}

func TestInstrumentHelpers(t *testing.T) {
	inst := NewInstrument("x", Tick{LastPrice: 9.4, PrevClose: 10, High: 9.4, Low: 9.4})
	assert.InDelta(t, -0.06, inst.DayReturn(), 1e-12)
	assert.True(t, inst.OneTickLocked())

	assert.Equal(t, 0.0, Instrument{LastPrice: 5}.DayReturn())
}

func TestPriceWindow(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC) }
	w := PriceWindow{InstrumentID: "a", Bars: []Bar{
		{Date: d(1), Close: 10},
		{Date: d(2), Close: 0},
		{Date: d(3), Close: 11},
	}}

	assert.Equal(t, []float64{10, 0, 11}, w.Closes())
	assert.Equal(t, []float64{10, 11}, w.ValidCloses())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 11.0, last.Close)

	assert.Equal(t, 2, w.Before(d(3)).Len())
	assert.Equal(t, 0, w.Before(d(1)).Len())

	_, ok = PriceWindow{}.Last()
	assert.False(t, ok)
}

func TestLatestBefore_NoLookAhead(t *testing.T) {
	eval := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	snaps := []FundamentalSnapshot{
		{AnnouncedAt: time.Date(2023, 10, 30, 0, 0, 0, 0, time.UTC), EPS: 1},
		{AnnouncedAt: time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC), EPS: 2},
		{AnnouncedAt: eval, EPS: 3},
		{AnnouncedAt: time.Date(2024, 8, 28, 0, 0, 0, 0, time.UTC), EPS: 4},
	}

	got, ok := LatestBefore(snaps, eval)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.EPS)

	_, ok = LatestBefore(snaps, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestRegimeWeightsValidate(t *testing.T) {
	assert.NoError(t, RegimeWeights{0.3, 0.5, 0.2}.Validate())
	assert.Error(t, RegimeWeights{0.3, 0.5, 0.3}.Validate())
	assert.Error(t, RegimeWeights{-0.1, 0.9, 0.2}.Validate())
}

func TestRankingTop(t *testing.T) {
	r := Ranking{{InstrumentID: "a"}, {InstrumentID: "b"}, {InstrumentID: "c"}}
	assert.Equal(t, []string{"a", "b"}, r.Top(2))
	assert.Equal(t, []string{"a", "b", "c"}, r.Top(10))
	assert.Empty(t, r.Top(-1))
	assert.Equal(t, []string{"a", "b", "c"}, r.IDs())
}

func TestManagedSet(t *testing.T) {
	m := NewManagedSet("b", "a")
	m.Add("c")
	assert.True(t, m.Has("a"))
	assert.Equal(t, 3, m.Len())

	removed := m.Reconcile(map[string]bool{"a": true, "c": true, "z": true})
	assert.Equal(t, []string{"b"}, removed)
	assert.Equal(t, []string{"a", "c"}, m.IDs())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","c"]`, string(data))

	var back ManagedSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, []string{"a", "c"}, back.IDs())

	var zero ManagedSet
	assert.False(t, zero.Has("a"))
	zero.Remove("a")
	zero.Add("a")
	assert.True(t, zero.Has("a"))
}

func TestDailyRiskState(t *testing.T) {
	d := NewDailyRiskState("2024-05-10")
	d.RecordBuy("a", 12000)
	d.RecordSell("b")

	assert.True(t, d.Flags("a").Bought)
	assert.True(t, d.Flags("b").Traded())
	assert.False(t, d.Flags("c").Traded())
	assert.Equal(t, 18000.0, d.RemainingQuota(30000))
	assert.Equal(t, 0.0, d.RemainingQuota(10000))

	d.Reset("2024-05-13")
	assert.Equal(t, "2024-05-13", d.Date)
	assert.Zero(t, d.CumulativeBuyAmount)
	assert.Empty(t, d.Instruments)
}

func TestPositionReturn(t *testing.T) {
	p := Position{Volume: 100, AvgCost: 10}
	assert.InDelta(t, 0.2, p.Return(12), 1e-12)
	assert.Equal(t, 0.0, Position{}.Return(12))
	assert.True(t, Position{}.IsFlat())
}

func TestOrderIsOpen(t *testing.T) {
	assert.True(t, Order{Status: StatusSubmitted}.IsOpen())
	assert.True(t, Order{Status: StatusPartial}.IsOpen())
	assert.False(t, Order{Status: StatusFilled}.IsOpen())
}
