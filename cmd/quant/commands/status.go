package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/factorloop/internal/runner"
)

var (
	statusURL     string
	statusRefresh time.Duration
)

// statusCmd polls the running loop's status endpoint
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "실행 중인 루프 상태 조회",
	Long: `실행 중인 'quant run' 의 /api/status 를 조회합니다.

표시 정보:
- 거래일 / 세션
- 감시 종목 수, 잔여 매수 한도
- 시장 국면, 서킷브레이커

Example:
  go run ./cmd/quant status
  go run ./cmd/quant status --refresh 5s`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusURL, "url", "http://localhost:8089", "status server base URL")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 0, "갱신 간격 (0 = 한 번만)")
}

func fetchStatus(ctx context.Context, client *http.Client) (runner.Status, error) {
	var st runner.Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL+"/api/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return st, fmt.Errorf("status server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("status server returned %s", resp.Status)
	}
	return st, json.NewDecoder(resp.Body).Decode(&st)
}

func displayStatus(st runner.Status) {
	PrintHeader("Loop Status", fmt.Sprintf("Last cycle: %s", st.Time.Format("2006-01-02 15:04:05")))
	PrintKeyValue("Date", st.Date, 16)
	PrintKeyValue("Session", st.Session, 16)
	PrintKeyValue("Trading", st.Trading, 16)
	PrintKeyValue("Monitored", st.Monitored, 16)
	PrintKeyValue("Remaining quota", fmt.Sprintf("%.2f", st.RemainingQuota), 16)
	PrintKeyValue("Regime", st.Regime, 16)
	PrintKeyValue("Breaker", fmt.Sprintf("%v (%s)", st.Breaker, pct(st.BenchmarkReturn)), 16)
	PrintKeyValue("Cash", fmt.Sprintf("%.2f", st.Cash), 16)
	PrintKeyValue("Total asset", fmt.Sprintf("%.2f", st.TotalAsset), 16)
	PrintKeyValue("Managed", st.Managed, 16)
	if st.Error != "" {
		PrintWarning(st.Error)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	client := &http.Client{Timeout: 5 * time.Second}

	st, err := fetchStatus(ctx, client)
	if err != nil {
		return err
	}
	displayStatus(st)
	if statusRefresh <= 0 {
		return nil
	}

	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\n✅ Status monitor stopped")
			return nil
		case <-ticker.C:
			st, err := fetchStatus(ctx, client)
			if err != nil {
				PrintWarning(err.Error())
				continue
			}
			// Clear screen (ANSI escape code)
			fmt.Print("\033[H\033[2J")
			displayStatus(st)
		}
	}
}
