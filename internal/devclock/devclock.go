// Package devclock interprets DW1000 transceiver timestamps.
//
// The transceiver stamps frames with a 40-bit counter running at 63.8976 GHz
// (128 * 499.2 MHz), about 15.65 picoseconds per tick. The counter wraps
// roughly every 17.2 seconds, so raw values are only meaningful as short
// intra-wrap deltas. Nothing in the engine makes ordering or windowing
// decisions on this clock; these helpers exist for diagnostics and snapshot
// display.
package devclock

import "time"

const (
	// tickFemtos is one transceiver tick (15.65 ps) in femtoseconds, kept
	// integral so conversions stay exact.
	tickFemtos = 15650

	// Mask keeps the low 40 bits of a raw timestamp.
	Mask = 1<<40 - 1
)

// Normalize masks a raw timestamp to the transceiver's 40-bit range.
func Normalize(ts uint64) uint64 {
	return ts & Mask
}

// Duration converts a tick count to wall time. The count is normalized
// first, so the result is always under one wrap period.
func Duration(ticks uint64) time.Duration {
	// 2^40 ticks * 15650 fs ~= 1.72e16, well inside uint64.
	//nolint:gosec // normalized product fits int64
	return time.Duration(Normalize(ticks) * tickFemtos / 1_000_000)
}

// Delta returns the wrap-aware forward distance from one timestamp to a
// later one, in ticks. Both inputs are normalized first.
func Delta(from, to uint64) uint64 {
	return (to - from) & Mask
}

// DeltaDuration is Delta expressed as wall time.
func DeltaDuration(from, to uint64) time.Duration {
	return Duration(Delta(from, to))
}

// WrapPeriod returns how long the 40-bit counter runs before wrapping.
func WrapPeriod() time.Duration {
	return time.Duration(uint64(1<<40) * tickFemtos / 1_000_000)
}
