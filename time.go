// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SimTime is the internal sim time type: nanoseconds since the
// start of the simulation.
type SimTime int64

const (
	// Nanosecond is the clock resolution.
	Nanosecond SimTime = 1
	// Microsecond is 1000 ns.
	Microsecond = 1000 * Nanosecond
	// Millisecond is 1000 us.
	Millisecond = 1000 * Microsecond
	// Second is 1000 ms.
	Second = 1000 * Millisecond
)

// Seconds converts a float number of seconds into a SimTime,
// rounding to the nearest nanosecond.
func Seconds(s float64) SimTime {
	return SimTime(math.Round(s * float64(Second)))
}

// Millis converts a float number of milliseconds into a SimTime.
func Millis(ms float64) SimTime {
	return SimTime(math.Round(ms * float64(Millisecond)))
}

// Seconds returns t as a float number of seconds.
func (t SimTime) Seconds() float64 {
	return float64(t) / float64(Second)
}

// Duration returns t as a time.Duration for printing.
func (t SimTime) Duration() time.Duration {
	return time.Duration(t)
}

func (t SimTime) String() string {
	return "+" + strconv.FormatFloat(t.Seconds(), 'f', -1, 64) + "s"
}

// ParseSimTime parses "20ms", "1.5s", "500us" and also a bare
// number, which is taken as seconds.  Negative, NaN, infinite or
// out of clock range values give ErrInvalidDelay.
func ParseSimTime(s string) (SimTime, error) {
	s = strings.TrimSpace(s)

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f*float64(Second) >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
		}

		return Seconds(f), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}

	if d < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDelay, s)
	}

	return SimTime(d), nil
}
