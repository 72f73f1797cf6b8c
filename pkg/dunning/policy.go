package dunning

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Policy holds the retry offsets of each attempt class, relative to the
// cycle anchor (first regular attempt, or suspension time for win-back).
type Policy struct {
	Regular []time.Duration
	WinBack []time.Duration
}

// DefaultPolicy is the fixed recovery schedule: immediate, day 3, 5, 7 and 10,
// plus a single win-back attempt 30 days after suspension.
var DefaultPolicy = Policy{
	Regular: []time.Duration{0, 3 * day, 5 * day, 7 * day, 10 * day},
	WinBack: []time.Duration{30 * day},
}

// MaxAttempts returns the number of attempts in a cycle of class c.
func (p Policy) MaxAttempts(c AttemptClass) int {
	return len(p.offsets(c))
}

// ScheduleFor returns when attempt n (1-based) of class c is due.
func (p Policy) ScheduleFor(c AttemptClass, anchor time.Time, n int) (time.Time, error) {
	offsets := p.offsets(c)
	if n < 1 || n > len(offsets) {
		return time.Time{}, fmt.Errorf("%w: attempt %d of %d (%s)", ErrRecoveryExhausted, n, len(offsets), c)
	}
	return anchor.Add(offsets[n-1]), nil
}

// Validate checks that offsets are non-negative and strictly increasing.
func (p Policy) Validate() error {
	for _, c := range []AttemptClass{ClassRegular, ClassWinBack} {
		offsets := p.offsets(c)
		if len(offsets) == 0 {
			return fmt.Errorf("%w: no %s offsets", ErrInvalidPolicy, c)
		}
		for i, off := range offsets {
			if off < 0 || (i > 0 && off <= offsets[i-1]) {
				return fmt.Errorf("%w: %s offsets must be increasing", ErrInvalidPolicy, c)
			}
		}
	}
	return nil
}

func (p Policy) offsets(c AttemptClass) []time.Duration {
	switch c {
	case ClassRegular:
		return p.Regular
	case ClassWinBack:
		return p.WinBack
	default:
		return nil
	}
}
