// Package schedule runs a job on a cron expression, one execution at a time.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	. "github.com/roelfdiedericks/formclaw/internal/logging"
)

// parser accepts standard 5-field expressions plus descriptors like "@hourly"
// and "@every 30m".
var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor)

// Parse validates expr and returns its schedule. A "CRON_TZ=Zone " prefix is honored.
func Parse(expr string) (cronlib.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// NextRuns returns the next n activation times after now.
func NextRuns(expr string, now time.Time, n int) ([]time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	t := now
	for i := 0; i < n; i++ {
		t = s.Next(t)
		out = append(out, t)
	}
	return out, nil
}

// ParseDuration parses human-friendly durations: "30s", "5m", "2h", "1d", "1w".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	unit := time.Duration(0)
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit == 0 {
		return time.ParseDuration(s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return time.Duration(n) * unit, nil
}

// Job is one scheduled execution. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule. A tick that fires while the
// previous execution is still running is skipped.
type Scheduler struct {
	expr string
	job  Job

	mu   sync.Mutex
	runs int
}

// New validates expr and returns a scheduler for job.
func New(expr string, job Job) (*Scheduler, error) {
	if _, err := Parse(expr); err != nil {
		return nil, err
	}
	return &Scheduler{expr: strings.TrimSpace(expr), job: job}, nil
}

// Runs returns how many executions have started.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// Run blocks until ctx ends, executing the job on every activation. It waits
// for an in-flight execution to return before it returns.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cronlib.New(
		cronlib.WithParser(parser),
		cronlib.WithChain(cronlib.Recover(logger), cronlib.SkipIfStillRunning(logger)),
		cronlib.WithLogger(logger),
	)

	_, err := c.AddFunc(s.expr, func() {
		s.mu.Lock()
		s.runs++
		n := s.runs
		s.mu.Unlock()

		start := time.Now()
		L_info("schedule: run starting", "run", n)
		if err := s.job(ctx); err != nil {
			L_error("schedule: run failed", "run", n, "error", err)
			return
		}
		L_elapsed(start, "schedule: run finished", "run", n)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %q: %w", s.expr, err)
	}

	c.Start()
	if next, err := NextRuns(s.expr, time.Now(), 1); err == nil {
		L_info("schedule: started", "expr", s.expr, "next", next[0].Format(time.RFC3339))
	}

	<-ctx.Done()
	L_info("schedule: stopping, waiting for running job")
	<-c.Stop().Done()
	return nil
}

// cronLogger routes robfig/cron's logging through the L_* functions.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	L_trace("schedule: cron "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	L_error("schedule: cron "+msg, append(keysAndValues, "error", err)...)
}
