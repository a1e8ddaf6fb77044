package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/factorloop/pkg/config"
	"github.com/wonny/factorloop/pkg/logger"
)

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	r := New(fastPolicy(3), nil, logger.NewNop())

	calls := 0
	err := r.Do(context.Background(), "tick", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	r := New(fastPolicy(2), nil, logger.NewNop())
	boom := errors.New("gateway down")

	calls := 0
	err := r.Do(context.Background(), "submit", func(ctx context.Context) error {
		calls++
		return boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	r := New(fastPolicy(5), nil, logger.NewNop())
	bad := errors.New("unknown instrument")

	calls := 0
	err := r.Do(context.Background(), "window", func(ctx context.Context) error {
		calls++
		return Permanent(bad)
	})

	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	r := New(Policy{MaxRetries: 5, InitialDelay: time.Hour}, nil, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	err := r.Do(ctx, "account", func(ctx context.Context) error {
		cancel()
		return errors.New("slow")
	})

	assert.Error(t, err)
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	r := New(Policy{MaxRetries: 0, Timeout: 5 * time.Millisecond}, nil, logger.NewNop())

	err := r.Do(context.Background(), "positions", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestValue(t *testing.T) {
	r := New(fastPolicy(1), NewLimiter(config.GatewayConfig{RatePerSecond: 1000, Burst: 2}), logger.NewNop())

	got, err := Value(context.Background(), r, "price", func(ctx context.Context) (float64, error) {
		return 15.5, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 15.5, got)
}

func TestNewLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewLimiter(config.GatewayConfig{RatePerSecond: 0}))
}
