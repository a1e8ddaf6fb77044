package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/factorloop/internal/api"
	"github.com/wonny/factorloop/internal/api/handlers"
	"github.com/wonny/factorloop/internal/runner"
	"github.com/wonny/factorloop/internal/scheduler"
	"github.com/wonny/factorloop/internal/scheduler/jobs"
)

var runNoAPI bool

// runCmd starts the polling loop, the scheduler and the status server
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "폴링 루프 + 리밸런싱 스케줄러 + 상태 API 시작",
	Long: `장중 폴링 루프를 시작합니다.

- loop.interval 마다 장중 규칙 평가 (거래 시간 외에는 대기)
- rebalance.schedule 에 리밸런싱 실행
- 매일 장 마감 후 오래된 daily_state 파일 정리
- API_PORT 로 /health, /api/status, /api/ranking, /metrics, /ws/status 제공

Ctrl+C 로 종료합니다.

Example:
  go run ./cmd/quant run
  go run ./cmd/quant run --strategy config/strategy/factor_loop.yaml --no-api`,
	RunE: runLoop,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runNoAPI, "no-api", false, "do not start the status server")
}

// newScheduler registers the rebalance and state prune jobs.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log, scheduler.WithLocation(a.strategy.Location()), scheduler.WithRetry(1, 30*time.Second))
	if err := sched.AddJob(jobs.NewRebalanceJob(a.runner, a.strategy.Rebalance.Schedule, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewStatePruneJob(a.runner, a.log)); err != nil {
		return nil, err
	}
	return sched, nil
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	g, ctx := errgroup.WithContext(ctx)

	// 1. 상태 API + 웹소켓
	if a.cfg.API.Enabled && !runNoAPI {
		hub := api.NewHub(a.cfg.API.AllowedOrigins, a.log)
		a.runner.Subscribe(func(st runner.Status) { hub.Broadcast(api.MsgTypeStatus, st) })

		deps := api.RouterDeps{
			Status:         handlers.NewStatusHandler(a.runner, sched, a.log),
			Hub:            hub,
			AllowedOrigins: a.cfg.API.AllowedOrigins,
		}
		if a.metrics != nil {
			deps.Metrics = a.metrics.Handler()
		}
		srv := api.NewServer(a.cfg.API.Port, api.NewRouter(deps, a.log), a.log)

		g.Go(func() error {
			hub.Run(ctx)
			return nil
		})
		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// 2. 폴링 루프
	g.Go(func() error {
		return a.runner.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("Shutdown complete")
	return nil
}
