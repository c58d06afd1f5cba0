// -*- tab-width:2 -*-

package sim

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// DataRate is a rate in bits per second.
type DataRate uint64

// Common rates.
const (
	BitPerSecond DataRate = 1
	Kbps                  = 1000 * BitPerSecond
	Mbps                  = 1000 * Kbps
	Gbps                  = 1000 * Mbps
)

var ratePrefixes = map[string]float64{
	"":   1,
	"k":  1e3,
	"K":  1e3,
	"Ki": 1 << 10, //nolint:mnd
	"M":  1e6,
	"Mi": 1 << 20, //nolint:mnd
	"G":  1e9,
	"Gi": 1 << 30, //nolint:mnd
}

// ParseDataRate parses strings like "5Mbps", "500kb/s", "250Kbps",
// "1MBps" (bytes) or "2Kib/s".  A bare number is bits per second.
func ParseDataRate(s string) (DataRate, error) {
	s = strings.TrimSpace(s)

	i := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r == '.' || r == 'e' || r == 'E' || r == '+' || r == '-')
	})
	if i < 0 {
		i = len(s)
	}

	num, unit := s[:i], s[i:]

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("bad data rate %q: %w", s, err)
	}

	mult := 1.0

	if unit != "" {
		var ok bool

		mult, ok = rateUnit(unit)
		if !ok {
			return 0, fmt.Errorf("bad data rate unit %q in %q", unit, s)
		}
	}

	r := v * mult
	if r < 1 || math.IsInf(r, 0) || r >= math.MaxUint64 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRate, s)
	}

	return DataRate(math.Round(r)), nil
}

// rateUnit returns the multiplier to bits per second for unit.
func rateUnit(unit string) (float64, bool) {
	var body string

	switch {
	case strings.HasSuffix(unit, "/s"):
		body = strings.TrimSuffix(unit, "/s")
	case strings.HasSuffix(unit, "ps"):
		body = strings.TrimSuffix(unit, "ps")
	default:
		return 0, false
	}

	if body == "" {
		return 0, false
	}

	size := 1.0

	switch body[len(body)-1] {
	case 'b':
	case 'B':
		size = 8 //nolint:mnd
	default:
		return 0, false
	}

	prefix, ok := ratePrefixes[body[:len(body)-1]]
	if !ok {
		return 0, false
	}

	return prefix * size, true
}

// BitRate returns the rate as bits per second.
func (r DataRate) BitRate() uint64 {
	return uint64(r)
}

// TxTime returns how long sending the given number of bytes takes at
// this rate, truncated to the nanosecond.  A zero rate returns
// ErrInvalidRate.
func (r DataRate) TxTime(bytes uint64) (SimTime, error) {
	if r == 0 {
		return 0, ErrInvalidRate
	}

	hi, lo := bits.Mul64(bytes*8, uint64(Second)) //nolint:mnd
	if hi >= uint64(r) {
		return 0, fmt.Errorf("%w: %d bytes at %s overflows the clock", ErrInvalidRate, bytes, r)
	}

	q, _ := bits.Div64(hi, lo, uint64(r))
	if q > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d bytes at %s overflows the clock", ErrInvalidRate, bytes, r)
	}

	return SimTime(q), nil
}

func (r DataRate) String() string {
	switch {
	case r >= Gbps && r%Gbps == 0:
		return strconv.FormatUint(uint64(r/Gbps), 10) + "Gbps"
	case r >= Mbps && r%Mbps == 0:
		return strconv.FormatUint(uint64(r/Mbps), 10) + "Mbps"
	case r >= Kbps && r%Kbps == 0:
		return strconv.FormatUint(uint64(r/Kbps), 10) + "Kbps"
	}

	return strconv.FormatUint(uint64(r), 10) + "bps"
}
