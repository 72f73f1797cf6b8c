package queue

import (
	"log/slog"
	"time"
)

// SchedulerOption is a functional option for configuring a scheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// WithCheckInterval sets how often the scheduler checks for due tasks.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerLogger sets the logger for the scheduler.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerClock overrides time.Now. Used by tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(o *schedulerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// SchedulerTaskOption is a functional option for configuring a scheduled task.
type SchedulerTaskOption func(*schedulerTaskOptions)

type schedulerTaskOptions struct {
	timeout  time.Duration
	runFirst bool
}

// WithTaskTimeout bounds a single run of the task.
func WithTaskTimeout(d time.Duration) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithRunOnStart runs the task on the first check instead of waiting for its schedule.
func WithRunOnStart() SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		o.runFirst = true
	}
}
