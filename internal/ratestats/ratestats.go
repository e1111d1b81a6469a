// Package ratestats maintains rolling per-second counts of ranging traffic.
//
// Buckets are keyed by the unix second of the authoritative host timestamp
// and split by role and kind so the events-per-second series can be broken
// down per device. Heartbeats are liveness signals, not traffic, and are
// never counted here.
package ratestats

import (
	"sort"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Bucket holds the event counts observed during one wall-clock second.
type Bucket struct {
	Second      int64  `json:"second"`
	TagTX       uint64 `json:"tag_tx"`
	TagRX       uint64 `json:"tag_rx"`
	TagRange    uint64 `json:"tag_range"`
	AnchorTX    uint64 `json:"anchor_tx"`
	AnchorRX    uint64 `json:"anchor_rx"`
	AnchorRange uint64 `json:"anchor_range"`
}

// Total is the combined event count of the bucket across roles and kinds.
func (b Bucket) Total() uint64 {
	return b.TagTX + b.TagRX + b.TagRange +
		b.AnchorTX + b.AnchorRX + b.AnchorRange
}

// Aggregator accumulates buckets over a bounded retention window. It is
// owned by the consumer stage and is not safe for concurrent use.
type Aggregator struct {
	retention time.Duration
	buckets   map[int64]*Bucket
	latest    int64 // highest second observed so far
}

// New returns an empty aggregator retaining the given window of seconds.
func New(retention time.Duration) *Aggregator {
	return &Aggregator{
		retention: retention,
		buckets:   make(map[int64]*Bucket),
	}
}

// Observe counts an event in the bucket of its host-timestamp second.
// Heartbeats are ignored.
func (a *Aggregator) Observe(ev wire.Event) {
	if ev.Kind == wire.KindHeartbeat {
		return
	}

	sec := ev.HostTS.Unix()
	b, ok := a.buckets[sec]
	if !ok {
		b = &Bucket{Second: sec}
		a.buckets[sec] = b
	}
	if sec > a.latest {
		a.latest = sec
	}

	switch {
	case ev.Role == wire.RoleTag && ev.Kind == wire.KindTX:
		b.TagTX++
	case ev.Role == wire.RoleTag && ev.Kind == wire.KindRX:
		b.TagRX++
	case ev.Role == wire.RoleTag && ev.Kind == wire.KindRange:
		b.TagRange++
	case ev.Role == wire.RoleAnchor && ev.Kind == wire.KindTX:
		b.AnchorTX++
	case ev.Role == wire.RoleAnchor && ev.Kind == wire.KindRX:
		b.AnchorRX++
	case ev.Role == wire.RoleAnchor && ev.Kind == wire.KindRange:
		b.AnchorRange++
	}
}

// Sweep evicts buckets that have aged out of the retention window and
// returns how many were removed. The reference point is whichever is
// later, the wall clock or the newest observed second, so a stream with
// skewed host stamps still converges on the configured window.
func (a *Aggregator) Sweep(now time.Time) int {
	ref := now.Unix()
	if a.latest > ref {
		ref = a.latest
	}
	cutoff := ref - int64(a.retention/time.Second)

	evicted := 0
	for sec := range a.buckets {
		if sec <= cutoff {
			delete(a.buckets, sec)
			evicted++
		}
	}
	return evicted
}

// Snapshot returns the retained buckets ordered by second, oldest first.
// The result is a copy; mutating it does not touch the aggregator.
func (a *Aggregator) Snapshot() []Bucket {
	out := make([]Bucket, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Second < out[j].Second })
	return out
}

// Len reports the number of retained buckets.
func (a *Aggregator) Len() int {
	return len(a.buckets)
}
