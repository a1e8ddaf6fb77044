package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/factorloop/internal/rebalance"
	"github.com/wonny/factorloop/pkg/logger"
)

// Rebalancer runs one rebalance check (runner.Runner).
type Rebalancer interface {
	Rebalance(ctx context.Context, now time.Time) (rebalance.Report, error)
}

// RebalanceJob runs the rebalance check near the close of every session.
// ⭐ SSOT: 리밸런싱 스케줄은 이 Job에서만
type RebalanceJob struct {
	runner   Rebalancer
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRebalanceJob creates a new rebalance job
func NewRebalanceJob(r Rebalancer, schedule string, log *logger.Logger) *RebalanceJob {
	return &RebalanceJob{
		runner:   r,
		schedule: schedule,
		logger:   log.WithComponent("rebalance_job"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Schedule returns the configured cron expression
func (j *RebalanceJob) Schedule() string {
	return j.schedule
}

// Run executes the rebalance check
func (j *RebalanceJob) Run(ctx context.Context) error {
	report, err := j.runner.Rebalance(ctx, j.now())
	if err != nil {
		return fmt.Errorf("rebalance: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"session":    report.Session,
		"due":        report.Due,
		"regime":     report.Regime,
		"hard_stops": len(report.HardStops),
		"sells":      len(report.Sells),
		"buys":       len(report.Buys),
	}).Info("Scheduled rebalance finished")
	return nil
}
