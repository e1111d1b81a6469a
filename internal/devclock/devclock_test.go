package devclock

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	tests := []struct {
		name  string
		ticks uint64
		want  time.Duration
	}{
		{
			name:  "zero ticks",
			ticks: 0,
			want:  0,
		},
		{
			name:  "single tick truncates below a nanosecond",
			ticks: 1,
			want:  0,
		},
		{
			name:  "64 ticks is about a nanosecond",
			ticks: 64, // 64 * 15.65 ps = 1001.6 ps
			want:  time.Nanosecond,
		},
		{
			name:  "one millisecond worth of ticks",
			ticks: 63897600, // 1 ms / 15.65 ps
			want:  time.Duration(uint64(63897600) * 15650 / 1_000_000),
		},
		{
			name:  "input normalized before converting",
			ticks: (1 << 40) + 64,
			want:  time.Nanosecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Duration(tt.ticks)
			if got != tt.want {
				t.Errorf("Duration(%d) = %v, want %v", tt.ticks, got, tt.want)
			}
		})
	}
}

func TestWrapPeriod(t *testing.T) {
	wrap := WrapPeriod()
	if wrap < 17*time.Second || wrap > 18*time.Second {
		t.Errorf("WrapPeriod() = %v, want ~17.2s", wrap)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		want uint64
	}{
		{"in range unchanged", 12345, 12345},
		{"max value unchanged", Mask, Mask},
		{"bit 40 dropped", 1 << 40, 0},
		{"high bits dropped", (1 << 40) | 77, 77},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%#x) = %#x, want %#x", tt.in, got, tt.want)
			}
		})
	}
}

func TestDelta(t *testing.T) {
	tests := []struct {
		name     string
		from, to uint64
		want     uint64
	}{
		{"no movement", 100, 100, 0},
		{"forward", 100, 150, 50},
		{"across the wrap", Mask - 9, 10, 20},
		{"unnormalized inputs", (1 << 40) + 5, (1 << 41) + 8, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Delta(tt.from, tt.to); got != tt.want {
				t.Errorf("Delta(%d, %d) = %d, want %d", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestDeltaDuration(t *testing.T) {
	// A wrap-crossing delta of exactly 6389760 ticks (~100 us).
	got := DeltaDuration(Mask-3194880+1, 3194880)
	want := Duration(6389760)
	if got != want {
		t.Errorf("DeltaDuration() = %v, want %v", got, want)
	}
}
