package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestUntilImmediate(t *testing.T) {
	calls := 0
	err := Until(context.Background(), time.Second, time.Second, func() (bool, error) {
		calls++
		return true, nil
	})
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestUntilEventually(t *testing.T) {
	calls := 0
	err := Until(context.Background(), 5*time.Millisecond, time.Second, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Until: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestUntilTimeoutBounds(t *testing.T) {
	interval := 20 * time.Millisecond
	timeout := 150 * time.Millisecond

	start := time.Now()
	err := Until(context.Background(), interval, timeout, func() (bool, error) { return false, nil })
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed < timeout {
		t.Errorf("returned after %v, before the %v timeout", elapsed, timeout)
	}
	// one interval of tolerance plus scheduler slack
	if elapsed > timeout+interval+100*time.Millisecond {
		t.Errorf("returned after %v, too long past the %v timeout", elapsed, timeout)
	}
}

func TestUntilConditionError(t *testing.T) {
	boom := errors.New("boom")
	err := Until(context.Background(), time.Millisecond, time.Second, func() (bool, error) { return false, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestUntilContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Until(ctx, 5*time.Millisecond, 5*time.Second, func() (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUntilWakeEarly(t *testing.T) {
	wake := make(chan struct{}, 1)
	var ready atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		ready.Store(true)
		wake <- struct{}{}
	}()

	start := time.Now()
	err := UntilWake(context.Background(), time.Hour, 5*time.Second, wake, func() (bool, error) {
		return ready.Load(), nil
	})
	if err != nil {
		t.Fatalf("UntilWake: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("wake did not trigger an early evaluation")
	}
}

func TestRetry(t *testing.T) {
	notYet := errors.New("not yet")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, nil, func() error {
		calls++
		if calls < 3 {
			return notYet
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Errorf("Retry = %v after %d calls", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), 4, time.Millisecond, nil, func() error {
		calls++
		return notYet
	})
	if !errors.Is(err, notYet) || calls != 4 {
		t.Errorf("Retry = %v after %d calls, want notYet after 4", err, calls)
	}

	fatal := errors.New("fatal")
	calls = 0
	err = Retry(context.Background(), 4, time.Millisecond, func(e error) bool { return e != fatal }, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || calls != 1 {
		t.Errorf("non-retryable error retried: %v after %d calls", err, calls)
	}
}
