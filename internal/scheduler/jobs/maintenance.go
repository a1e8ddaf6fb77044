package jobs

import (
	"context"
	"time"

	"github.com/wonny/factorloop/pkg/logger"
)

// Pruner removes expired daily state files (runner.Runner).
type Pruner interface {
	Prune(now time.Time) ([]string, error)
}

// StatePruneJob deletes daily state files outside the retention window.
type StatePruneJob struct {
	pruner Pruner
	logger *logger.Logger
	now    func() time.Time
}

// NewStatePruneJob creates a new state prune job
func NewStatePruneJob(p Pruner, log *logger.Logger) *StatePruneJob {
	return &StatePruneJob{
		pruner: p,
		logger: log.WithComponent("state_prune_job"),
		now:    time.Now,
	}
}

// Name returns the job name
func (j *StatePruneJob) Name() string {
	return "state_prune"
}

// Schedule returns the cron schedule (daily after the close)
func (j *StatePruneJob) Schedule() string {
	return "0 30 15 * * *"
}

// Run executes the prune
func (j *StatePruneJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	removed, err := j.pruner.Prune(j.now())
	if err != nil {
		return err
	}
	if len(removed) > 0 {
		j.logger.WithField("removed", removed).Info("State prune completed")
	}
	return nil
}
