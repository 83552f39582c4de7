// Package poll implements the bounded fixed-interval wait used by every
// blocking step of a run: the readiness wait, the button retry, and the
// download wait.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when the condition did not hold before the deadline.
var ErrTimeout = errors.New("poll: timed out")

// Condition is evaluated on every tick. done=true stops the wait successfully;
// a non-nil error stops it with that error.
type Condition func() (done bool, err error)

// Until evaluates cond immediately and then every interval until it reports
// done, returns an error, ctx ends, or timeout elapses.
//
// The last evaluation happens at the deadline, so a timed-out wait returns
// no earlier than timeout and no later than timeout plus one evaluation.
func Until(ctx context.Context, interval, timeout time.Duration, cond Condition) error {
	return UntilWake(ctx, interval, timeout, nil, cond)
}

// UntilWake is Until with an extra wake channel: a receive on wake triggers an
// early evaluation without waiting for the next tick. A nil channel never fires.
func UntilWake(ctx context.Context, interval, timeout time.Duration, wake <-chan struct{}, cond Condition) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		case <-wake:
			timer.Stop()
		}
	}
}

// Retry calls fn up to attempts times, sleeping delay between attempts.
// It stops early when fn succeeds, when fn returns an error for which
// retryable reports false, or when ctx ends. The last error is returned.
func Retry(ctx context.Context, attempts int, delay time.Duration, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
