package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorloop/internal/contracts"
	"github.com/wonny/factorloop/internal/gateway"
	"github.com/wonny/factorloop/internal/position"
	"github.com/wonny/factorloop/internal/state"
)

var stateJSON bool

// stateCmd groups state directory commands
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "STATE_DIR 상태 파일 조회/정리",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "보유 포지션, 관리 종목, 일일 리스크 상태 출력",
	Long: `STATE_DIR 의 원장/관리 종목/세션/일일 상태를 출력합니다. DB 연결이 필요 없습니다.

Example:
  go run ./cmd/quant state show
  go run ./cmd/quant state show --json > positions.json`,
	RunE: runStateShow,
}

var statePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "보존 기간이 지난 daily_state 파일 삭제",
	RunE:  runStatePrune,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(statePruneCmd)
	stateShowCmd.Flags().BoolVar(&stateJSON, "json", false, "print JSON")
}

// stateView is the exported snapshot of STATE_DIR.
type stateView struct {
	Account   contracts.Account         `json:"account"`
	Positions []contracts.Position      `json:"positions"`
	Managed   []string                  `json:"managed"`
	Session   state.SessionCounter      `json:"session"`
	Daily     *contracts.DailyRiskState `json:"daily,omitempty"`
}

func loadStateView(ctx context.Context, b *base) (*stateView, error) {
	store, err := state.NewStore(b.cfg.StateDir, b.log)
	if err != nil {
		return nil, err
	}

	ledger, err := store.LoadLedger(b.strategy.Rebalance.InitialCash)
	if err != nil {
		return nil, err
	}
	// 게이트웨이가 보고하는 포지션 (시뮬레이션: 원장)
	sim := position.NewSimulated(ledger, nil, b.log)
	live := position.NewLive(gateway.NewPaper(sim, b.strategy.Location()))

	view := &stateView{}
	if view.Positions, err = live.Positions(ctx); err != nil {
		return nil, err
	}
	if view.Account, err = live.CashAndTotalAsset(ctx); err != nil {
		return nil, err
	}

	managed, err := store.LoadManaged()
	if err != nil {
		return nil, err
	}
	view.Managed = managed.IDs()

	if view.Session, err = store.LoadSession(); err != nil {
		return nil, err
	}

	dates, err := store.DailyDates()
	if err != nil {
		return nil, err
	}
	if len(dates) > 0 {
		daily, _, err := store.LoadDaily(dates[len(dates)-1])
		if err != nil {
			return nil, err
		}
		view.Daily = daily
	}
	return view, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	out := io.Writer(os.Stdout)
	if stateJSON {
		out = os.Stderr
	}
	b, err := loadBaseTo(out)
	if err != nil {
		return err
	}
	view, err := loadStateView(cmd.Context(), b)
	if err != nil {
		return err
	}

	if stateJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	PrintHeader("State", fmt.Sprintf("Dir       : %s", b.cfg.StateDir))
	PrintKeyValue("Cash", fmt.Sprintf("%.2f", view.Account.Cash), 14)
	PrintKeyValue("Total asset", fmt.Sprintf("%.2f", view.Account.TotalAsset), 14)
	PrintKeyValue("Session", view.Session.Count, 14)
	PrintKeyValue("Last rebalance", view.Session.LastRebalance, 14)
	PrintKeyValue("Managed", view.Managed, 14)

	if view.Daily != nil {
		PrintKeyValue("Daily date", view.Daily.Date, 14)
		PrintKeyValue("Spent today", fmt.Sprintf("%.2f / %.0f", view.Daily.CumulativeBuyAmount, b.strategy.Intraday.DailyQuota), 14)
	}

	fmt.Println()
	widths := []int{12, 10, 10, 14}
	PrintTableHeader([]string{"Instrument", "Volume", "AvgCost", "MarketValue"}, widths)
	for _, p := range view.Positions {
		PrintTableRow([]string{
			p.InstrumentID,
			fmt.Sprintf("%d", p.Volume),
			fmt.Sprintf("%.4f", p.AvgCost),
			fmt.Sprintf("%.2f", p.MarketValue),
		}, widths)
	}
	return nil
}

func runStatePrune(cmd *cobra.Command, args []string) error {
	b, err := loadBase()
	if err != nil {
		return err
	}
	store, err := state.NewStore(b.cfg.StateDir, b.log)
	if err != nil {
		return err
	}

	removed, err := store.Prune(time.Now().In(b.strategy.Location()), b.strategy.Loop.StateRetentionDays)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Removed %d daily state file(s)", len(removed)))
	return nil
}
