package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when a periodic task should run next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// cronSchedule wraps a parsed standard cron expression.
type cronSchedule struct {
	expr  string
	sched cron.Schedule
}

func (s cronSchedule) Next(from time.Time) time.Time {
	return s.sched.Next(from)
}

func (s cronSchedule) String() string {
	return "cron " + s.expr
}

// EveryInterval runs a task every d. Non-positive durations fall back to one minute.
func EveryInterval(d time.Duration) Schedule {
	if d <= 0 {
		d = time.Minute
	}
	return intervalSchedule{every: d}
}

// DailyAt runs a task once a day at hour:minute in the location of the reference time.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour % 24, minute: minute % 60}
}

// Cron parses a standard five-field cron expression or a descriptor such as "@hourly".
func Cron(expr string) (Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
	}
	return cronSchedule{expr: expr, sched: sched}, nil
}

// MustCron is like Cron but panics on an invalid expression.
func MustCron(expr string) Schedule {
	s, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseSchedule reads a schedule from configuration. It accepts a duration
// such as "5m" (EveryInterval), "daily HH:MM" (DailyAt), or anything Cron accepts.
func ParseSchedule(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if d, err := time.ParseDuration(expr); err == nil {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %q: interval must be positive", ErrInvalidSchedule, expr)
		}
		return EveryInterval(d), nil
	}
	if at, ok := strings.CutPrefix(expr, "daily "); ok {
		t, err := time.Parse("15:04", strings.TrimSpace(at))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
		}
		return DailyAt(t.Hour(), t.Minute()), nil
	}
	return Cron(expr)
}
