package bundle

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/italolelis/bundle_installer/internal/logctx"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy is a fixed schedule of delays between attempts. An operation is
// attempted once plus once per delay.
type RetryPolicy struct {
	Delays []time.Duration
	Sleep  SleepFunc
}

// DefaultRetryPolicy waits 500ms, 1s and 2s between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Delays: []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// ExponentialRetryPolicy builds retries delays starting at initial and
// multiplied by factor each time.
func ExponentialRetryPolicy(initial time.Duration, factor float64, retries int) RetryPolicy {
	delays := make([]time.Duration, 0, retries)

	for i := range retries {
		delays = append(delays, time.Duration(float64(initial)*math.Pow(factor, float64(i))))
	}

	return RetryPolicy{Delays: delays}
}

// Do runs fn until it succeeds or the schedule is exhausted and returns the
// last error. If ctx ends during a delay the last error is joined with the
// context error.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	logger := logctx.LoggerFromContext(ctx)

	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	err := fn(ctx)

	for i, delay := range p.Delays {
		if err == nil {
			return nil
		}

		logger.Warn("attempt failed, retrying", "attempt", i+1, "delay", delay, "err", err)

		if serr := sleep(ctx, delay); serr != nil {
			return errors.Join(err, serr)
		}

		err = fn(ctx)
	}

	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
