package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorloop/internal/regime"
)

var rankTop int

// rankCmd computes and prints the factor ranking
var rankCmd = &cobra.Command{
	Use:   "rank",
	Short: "유니버스 팩터 랭킹 계산 (주문 없음)",
	Long: `현재 시장 국면의 가중치로 유니버스를 랭킹합니다.
결과는 trading.rank_snapshots 에 저장됩니다.

Example:
  go run ./cmd/quant rank
  go run ./cmd/quant rank --top 20`,
	RunE: runRank,
}

// regimeCmd prints the current regime
var regimeCmd = &cobra.Command{
	Use:   "regime",
	Short: "벤치마크 기준 시장 국면 조회",
	RunE:  runRegime,
}

func init() {
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(regimeCmd)
	rankCmd.Flags().IntVar(&rankTop, "top", 10, "number of rows to print (0 = all)")
}

func runRank(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ranking, regime, err := a.runner.Rank(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("rank: %w", err)
	}

	PrintHeader("Factor Ranking",
		fmt.Sprintf("Regime    : %s (fallback=%v)", regime.Regime, regime.Fallback),
		fmt.Sprintf("Weights   : fundamental %.2f / momentum %.2f / risk %.2f",
			regime.Weights.Fundamental, regime.Weights.Momentum, regime.Weights.Risk),
		fmt.Sprintf("Universe  : %d ranked of %d", len(ranking), len(a.strategy.Meta.Universe)),
	)

	rows := ranking
	if rankTop > 0 && rankTop < len(rows) {
		rows = rows[:rankTop]
	}
	widths := []int{5, 12, 8, 8, 8, 8, 9, 9}
	PrintTableHeader([]string{"Rank", "Instrument", "Total", "Fund", "Mom", "Risk", "Mom20", "Mom60"}, widths)
	for _, s := range rows {
		PrintTableRow([]string{
			strconv.Itoa(s.Rank),
			s.InstrumentID,
			fmt.Sprintf("%.3f", s.Total),
			fmt.Sprintf("%.3f", s.Fundamental),
			fmt.Sprintf("%.3f", s.Momentum),
			fmt.Sprintf("%.3f", s.Risk),
			pct(s.Factors.MomentumShort),
			pct(s.Factors.MomentumMid),
		}, widths)
	}
	return nil
}

func runRegime(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st := regime.NewClassifier(a.strategy, a.log).Detect(ctx, a.provider, a.strategy.Meta.Benchmark)

	PrintHeader("Market Regime")
	PrintKeyValue("Benchmark", a.strategy.Meta.Benchmark, 12)
	PrintKeyValue("Regime", st.Regime, 12)
	PrintKeyValue("Price", fmt.Sprintf("%.2f", st.Price), 12)
	PrintKeyValue("MA", fmt.Sprintf("%.2f", st.MovingAverage), 12)
	PrintKeyValue("Multiplier", st.PositionMultiplier, 12)
	PrintKeyValue("Fallback", st.Fallback, 12)
	return nil
}
