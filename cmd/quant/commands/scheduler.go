package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄 작업 조회/즉시 실행",
	Long: `등록된 스케줄 작업을 조회하거나 즉시 실행합니다.

등록되는 작업:
- rebalance: rebalance.schedule (기본 평일 14:50)
- state_prune: 매일 15:30 (daily_state 보존 기간 정리)

Example:
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run state_prune`,
}

var (
	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	PrintHeader("Scheduled Jobs", fmt.Sprintf("Timezone  : %s", a.strategy.Location()))
	widths := []int{14, 18, 25}
	PrintTableHeader([]string{"Job", "Schedule", "Next run"}, widths)
	for _, st := range sched.Stats() {
		next := "-"
		if st.NextRun != nil {
			next = st.NextRun.Format("2006-01-02 15:04:05")
		}
		PrintTableRow([]string{st.JobName, st.Schedule, next}, widths)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", args[0])
	res, err := sched.RunNow(ctx, args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("job %s failed after %d attempt(s): %s", res.JobName, res.Attempts, res.Error)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed in %s", res.JobName, res.Duration.Round(time.Millisecond)))
	return nil
}
