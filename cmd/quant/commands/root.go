package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "factorloop - 팩터 랭킹 + 리밸런싱 + 장중 리스크 루프",
	Long: `factorloop CLI

멀티팩터 랭킹으로 보유 종목을 주기적으로 교체하고,
장중에는 익절/손절/트레일링/ATR 손절과 눌림목 매수를 감시합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant run
  go run ./cmd/quant rank --top 20
  go run ./cmd/quant regime
  go run ./cmd/quant rebalance
  go run ./cmd/quant state show`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default: STRATEGY_FILE or built-in defaults)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
