package intraday

// Phase is the per-instrument, per-day evaluation state.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseWatching  Phase = "watching"
	PhaseTriggered Phase = "triggered"
	PhaseDone      Phase = "done"
)

// DayState is the in-memory intraday bookkeeping reset at every rollover.
// ⭐ SSOT: 장중 고점/ATR 캐시/종목 상태는 여기서만 보관
type DayState struct {
	Date   string             `json:"date"`
	Highs  map[string]float64 `json:"highs"`
	ATR    map[string]float64 `json:"atr"`
	Phases map[string]Phase   `json:"phases"`
}

// NewDayState returns empty bookkeeping for date.
func NewDayState(date string) *DayState {
	return &DayState{
		Date:   date,
		Highs:  make(map[string]float64),
		ATR:    make(map[string]float64),
		Phases: make(map[string]Phase),
	}
}

// Phase returns the phase of id (Idle when unseen).
func (s *DayState) Phase(id string) Phase {
	if p, ok := s.Phases[id]; ok {
		return p
	}
	return PhaseIdle
}

// Settle records the outcome of a triggered intent: Done on success, back to
// Watching when the order could not be placed.
func (s *DayState) Settle(id string, ok bool) {
	if ok {
		s.Phases[id] = PhaseDone
		return
	}
	s.Phases[id] = PhaseWatching
}

// ObserveHigh keeps the highest of the stored value, tick high and last price.
func (s *DayState) ObserveHigh(id string, values ...float64) float64 {
	h := s.Highs[id]
	for _, v := range values {
		if v > h {
			h = v
		}
	}
	s.Highs[id] = h
	return h
}
