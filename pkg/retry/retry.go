package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wonny/factorloop/pkg/config"
	"github.com/wonny/factorloop/pkg/logger"
)

// Policy bounds a single external call.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Timeout      time.Duration // per attempt, 0 = none
}

// PolicyFromConfig builds the gateway policy from process config.
func PolicyFromConfig(cfg config.GatewayConfig) Policy {
	return Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.RetryBaseDelay,
		MaxDelay:     10 * cfg.RetryBaseDelay,
		Timeout:      cfg.CallTimeout,
	}
}

// Runner executes calls under a Policy and an optional rate limiter.
// ⭐ SSOT: 외부 호출(시세/주문)의 재시도는 여기서만
type Runner struct {
	policy  Policy
	limiter *rate.Limiter
	logger  *logger.Logger
}

// New creates a runner. limiter may be nil.
func New(policy Policy, limiter *rate.Limiter, log *logger.Logger) *Runner {
	return &Runner{policy: policy, limiter: limiter, logger: log}
}

// NewLimiter builds a token bucket limiter from config; rps <= 0 disables limiting.
func NewLimiter(cfg config.GatewayConfig) *rate.Limiter {
	if cfg.RatePerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, or the retry budget is spent.
func (r *Runner) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	delay := r.policy.InitialDelay
	var err error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if r.limiter != nil {
			if werr := r.limiter.Wait(ctx); werr != nil {
				return fmt.Errorf("%s: rate limit wait failed: %w", op, werr)
			}
		}

		err = r.attempt(ctx, fn)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil || attempt == r.policy.MaxRetries {
			break
		}

		r.logger.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).WithError(err).Warn("Retrying external call")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if r.policy.MaxDelay > 0 && delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, r.policy.MaxRetries+1, err)
}

func (r *Runner) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.policy.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.policy.Timeout)
	defer cancel()
	return fn(callCtx)
}

// Value is Do for calls that return a result.
func Value[T any](ctx context.Context, r *Runner, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
