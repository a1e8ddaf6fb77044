package contracts

// InstrumentFlags records which directions already traded today.
type InstrumentFlags struct {
	Bought bool `json:"bought"`
	Sold   bool `json:"sold"`
}

// Traded reports any trade today.
func (f InstrumentFlags) Traded() bool {
	return f.Bought || f.Sold
}

// DailyRiskState is the per-trading-day risk budget.
// ⭐ SSOT: 거래일 전환 시 정확히 한 번 초기화, 재시작 시 그대로 복원
type DailyRiskState struct {
	Date                string                     `json:"date"`
	CumulativeBuyAmount float64                    `json:"cumulative_buy_amount"`
	Instruments         map[string]InstrumentFlags `json:"instruments"`
}

// NewDailyRiskState returns a fresh state for date (YYYY-MM-DD).
func NewDailyRiskState(date string) *DailyRiskState {
	return &DailyRiskState{Date: date, Instruments: make(map[string]InstrumentFlags)}
}

// Flags returns the flags for id (zero value when untouched).
func (d *DailyRiskState) Flags(id string) InstrumentFlags {
	return d.Instruments[id]
}

// RecordBuy marks id bought and consumes amount of the daily quota.
func (d *DailyRiskState) RecordBuy(id string, amount float64) {
	if d.Instruments == nil {
		d.Instruments = make(map[string]InstrumentFlags)
	}
	f := d.Instruments[id]
	f.Bought = true
	d.Instruments[id] = f
	d.CumulativeBuyAmount += amount
}

// RecordSell marks id sold.
func (d *DailyRiskState) RecordSell(id string) {
	if d.Instruments == nil {
		d.Instruments = make(map[string]InstrumentFlags)
	}
	f := d.Instruments[id]
	f.Sold = true
	d.Instruments[id] = f
}

// RemainingQuota is quota minus what was already spent, floored at 0.
func (d *DailyRiskState) RemainingQuota(quota float64) float64 {
	rem := quota - d.CumulativeBuyAmount
	if rem < 0 {
		return 0
	}
	return rem
}

// Reset clears the budget for a new trading day.
func (d *DailyRiskState) Reset(date string) {
	d.Date = date
	d.CumulativeBuyAmount = 0
	d.Instruments = make(map[string]InstrumentFlags)
}
