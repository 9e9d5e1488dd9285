// Package retry wraps operations with bounded-budget exponential backoff.
// Only transient-class failures are retried; everything else surfaces on
// the first attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"mcpt/internal/config"
)

// Policy controls the executor. Zero fields fall back to the defaults.
type Policy struct {
	// MaxAttempts bounds the total number of attempts (not retries).
	MaxAttempts int

	// BaseDelay is the first backoff interval.
	BaseDelay time.Duration

	Logger *zap.Logger
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = config.DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = config.DefaultRetryDelay
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

// Do runs fn under the policy. The budget is derived from ctx's deadline
// minus a fixed reserve; once the remaining budget drops below the minimum,
// further retries are suppressed even if attempts remain. Retries are
// strictly sequential and the delay for attempt k is
// min(base*2^k, cap) * (1 ± 0.25*rand) with cap = min(10s, remaining/2).
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	p = p.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.25
	bo.MaxInterval = config.MaxRetryInterval

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}

		remaining := remainingBudget(ctx)
		if attempt == p.MaxAttempts-1 || remaining <= config.MinRetryBudget {
			return err
		}

		delay := bo.NextBackOff()
		if limit := remaining / 2; delay > limit {
			delay = limit
		}

		p.Logger.Debug("transient failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Duration("remaining_budget", remaining),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// remainingBudget is the time left until ctx's deadline minus the reserve.
// Without a deadline the budget is effectively unlimited.
func remainingBudget(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return time.Duration(1<<62 - 1)
	}
	return time.Until(deadline) - config.DeadlineReserve
}
