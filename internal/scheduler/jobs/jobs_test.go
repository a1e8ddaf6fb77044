package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/internal/rebalance"
	"github.com/wonny/factorloop/pkg/logger"
)

type fakeRebalancer struct {
	calls int
	err   error
}

func (f *fakeRebalancer) Rebalance(context.Context, time.Time) (rebalance.Report, error) {
	f.calls++
	return rebalance.Report{Due: true, Session: 6}, f.err
}

type fakePruner struct{ removed []string }

func (f fakePruner) Prune(time.Time) ([]string, error) { return f.removed, nil }

func TestRebalanceJob(t *testing.T) {
	r := &fakeRebalancer{}
	job := NewRebalanceJob(r, "0 50 14 * * 1-5", logger.NewNop())

	assert.Equal(t, "rebalance", job.Name())
	assert.Equal(t, "0 50 14 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, r.calls)

	r.err = errors.New("boom")
	assert.ErrorIs(t, job.Run(context.Background()), r.err)
}

func TestStatePruneJob(t *testing.T) {
	job := NewStatePruneJob(fakePruner{removed: []string{"2024-04-01"}}, logger.NewNop())
	require.NoError(t, job.Run(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
