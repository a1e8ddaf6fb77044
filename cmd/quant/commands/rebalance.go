package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorloop/internal/contracts"
)

// rebalanceCmd runs one rebalance check immediately
var rebalanceCmd = &cobra.Command{
	Use:   "rebalance",
	Short: "리밸런싱 즉시 실행",
	Long: `랭킹을 새로 계산하고 하드스톱 + (해당 세션이면) 종목 교체를 실행합니다.
같은 거래일에 이미 교체했다면 하드스톱만 적용됩니다.

Example:
  go run ./cmd/quant rebalance`,
	RunE: runRebalance,
}

func init() {
	rootCmd.AddCommand(rebalanceCmd)
}

func printTrades(title string, recs []contracts.TradeRecord) {
	if len(recs) == 0 {
		return
	}
	fmt.Println()
	fmt.Println(title)
	widths := []int{12, 5, 8, 10, 10, 12}
	PrintTableHeader([]string{"Instrument", "Side", "Volume", "Price", "Cost", "PnL"}, widths)
	for _, r := range recs {
		PrintTableRow([]string{
			r.InstrumentID,
			string(r.Side),
			fmt.Sprintf("%d", r.Volume),
			fmt.Sprintf("%.4f", r.Price),
			fmt.Sprintf("%.4f", r.CostBasis),
			fmt.Sprintf("%.2f", r.RealizedPnL),
		}, widths)
	}
}

func runRebalance(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.runner.Rebalance(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}

	PrintHeader("Rebalance",
		fmt.Sprintf("Session   : %d (due=%v)", report.Session, report.Due),
		fmt.Sprintf("Regime    : %s", report.Regime),
		fmt.Sprintf("Slot      : %.0f", report.TargetValue),
	)
	printTrades("Hard stops", report.HardStops)
	printTrades("Sells", report.Sells)
	printTrades("Buys", report.Buys)

	if len(report.Rejections) > 0 {
		fmt.Println()
		for _, r := range report.Rejections {
			PrintWarning(fmt.Sprintf("%s %s: %s", r.Side, r.InstrumentID, r.Reason))
		}
	}
	if !report.Traded() {
		PrintInfo("No orders placed")
	}
	return nil
}
