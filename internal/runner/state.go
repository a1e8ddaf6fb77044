package runner

import (
	"time"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/intraday"
	"github.com/wonny/factorloop/internal/state"
)

// RuntimeState is everything the loop carries between cycles.
// ⭐ SSOT: 거래일/세션/일일 리스크/관리 종목 상태는 여기서만 보관
type RuntimeState struct {
	Date    string
	Session state.SessionCounter
	Daily   *contracts.DailyRiskState
	Managed *contracts.ManagedSet
	Day     *intraday.DayState
	Ranking contracts.Ranking
	Regime  contracts.RegimeState

	// BuysSuspended is set while the day's orders cannot be read to rebuild
	// a lost daily state.
	BuysSuspended bool
}

// Status is the one-line cycle summary served by the API and pushed to
// websocket clients.
type Status struct {
	Time            time.Time        `json:"time"`
	Date            string           `json:"date"`
	Session         int              `json:"session"`
	Trading         bool             `json:"trading"`
	Monitored       int              `json:"monitored"`
	RemainingQuota  float64          `json:"remaining_quota"`
	Regime          contracts.Regime `json:"regime"`
	RegimeFallback  bool             `json:"regime_fallback"`
	Breaker         bool             `json:"breaker"`
	BenchmarkReturn float64          `json:"benchmark_return"`
	BuysSuspended   bool             `json:"buys_suspended"`
	Cash            float64          `json:"cash"`
	TotalAsset      float64          `json:"total_asset"`
	Managed         []string         `json:"managed"`
	Trades          int              `json:"trades"`
	Rejected        int              `json:"rejected"`
	Error           string           `json:"error,omitempty"`
}
