package billingcycle

import (
	"fmt"
	"time"
)

// Interval is the billing frequency of a tier.
type Interval string

const (
	Monthly Interval = "monthly"
	Yearly  Interval = "yearly"
)

// Valid reports whether i is a supported interval.
func (i Interval) Valid() bool {
	return i == Monthly || i == Yearly
}

// Period is a half-open billing window [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

// Validate returns ErrInvalidPeriod unless Start is strictly before End.
func (p Period) Validate() error {
	if !p.Start.Before(p.End) {
		return fmt.Errorf("%w: start=%s end=%s", ErrInvalidPeriod, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
	}
	return nil
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Duration returns the length of the period.
func (p Period) Duration() time.Duration {
	return p.End.Sub(p.Start)
}

// NewPeriod returns the period of one interval starting at start.
func NewPeriod(start time.Time, interval Interval) (Period, error) {
	end, err := Advance(start, interval, 1)
	if err != nil {
		return Period{}, err
	}
	return Period{Start: start, End: end}, nil
}

// NextPeriod advances both boundaries of current by exactly one interval.
func NextPeriod(current Period, interval Interval) (Period, error) {
	return shift(current, interval, 1)
}

// PreviousPeriod moves both boundaries of current back by one interval.
// Clamping is applied in the same way as NextPeriod, so the operation is not
// an exact inverse across month-length boundaries.
func PreviousPeriod(current Period, interval Interval) (Period, error) {
	return shift(current, interval, -1)
}

func shift(current Period, interval Interval, n int) (Period, error) {
	if err := current.Validate(); err != nil {
		return Period{}, err
	}
	start, err := Advance(current.Start, interval, n)
	if err != nil {
		return Period{}, err
	}
	end, err := Advance(current.End, interval, n)
	if err != nil {
		return Period{}, err
	}
	next := Period{Start: start, End: end}
	if err := next.Validate(); err != nil {
		return Period{}, err
	}
	return next, nil
}

// Advance moves t by n intervals, clamping the day to the end of the target month.
func Advance(t time.Time, interval Interval, n int) (time.Time, error) {
	switch interval {
	case Monthly:
		return addMonths(t, n), nil
	case Yearly:
		return addMonths(t, 12*n), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
}

// addMonths differs from time.AddDate in that it never overflows into the
// following month: Jan 31 + 1 month is Feb 28/29, not Mar 2/3.
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	total := int(month) - 1 + n
	year += total / 12
	total %= 12
	if total < 0 {
		total += 12
		year--
	}
	target := time.Month(total + 1)

	day = min(day, daysInMonth(year, target))
	return time.Date(year, target, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
