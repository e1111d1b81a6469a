package pairing

import (
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Link is a completed TX-to-RX observation of one over-the-air frame.
type Link struct {
	TX      wire.Event
	RX      wire.Event
	Latency time.Duration // rx.HostTS - tx.HostTS, within [0, horizon]
}

// FallbackMarker records a device-reported RANGE completion for which the
// TX/RX view produced no link inside the fallback horizon.
type FallbackMarker struct {
	Role   wire.Role // role that reported the RANGE
	HostTS time.Time
}

// Stats counts pairing outcomes since construction.
type Stats struct {
	Links      uint64 `json:"links"`
	UnpairedRX uint64 `json:"unpaired_rx"`
	ExpiredTX  uint64 `json:"expired_tx"`
	Fallbacks  uint64 `json:"fallbacks"`
}

// Pairer matches transmit events to opposite-role receive events within a
// bounded horizon. Not safe for concurrent use; the engine owns it.
type Pairer struct {
	horizon         time.Duration
	fallbackHorizon time.Duration

	// pending holds unconsumed TX events per role, oldest first. Host
	// stamps arrive monotonic per role, so expiry always trims a prefix.
	pending map[wire.Role][]wire.Event

	lastLinkAt time.Time // host stamp of the most recent link closure
	stats      Stats
}

// New creates a Pairer. The fallback horizon should be wider than the
// pairing horizon; a RANGE only raises a marker when no link closed within
// it.
func New(horizon, fallbackHorizon time.Duration) *Pairer {
	return &Pairer{
		horizon:         horizon,
		fallbackHorizon: fallbackHorizon,
		pending:         make(map[wire.Role][]wire.Event),
	}
}

// OnTX enqueues a transmit observation as a pairing candidate.
func (p *Pairer) OnTX(ev wire.Event) {
	p.pending[ev.Role] = append(p.pending[ev.Role], ev)
}

// OnRX attempts to close a link for a receive observation. Only pending TX
// events of the opposite role are considered, and only those whose latency
// falls inside [0, horizon]. The smallest latency wins; an exact tie keeps
// the candidate enqueued first. Consumed candidates leave the pending set.
func (p *Pairer) OnRX(rx wire.Event) (Link, bool) {
	candidates := p.pending[rx.Role.Opposite()]

	best := -1
	var bestLatency time.Duration
	for i, tx := range candidates {
		latency := rx.HostTS.Sub(tx.HostTS)
		if latency < 0 || latency > p.horizon {
			continue
		}
		// Strict improvement only: on equal latency the earlier enqueue
		// (lower index) stays the winner.
		if best == -1 || latency < bestLatency {
			best = i
			bestLatency = latency
		}
	}

	if best == -1 {
		p.stats.UnpairedRX++
		return Link{}, false
	}

	tx := candidates[best]
	p.pending[rx.Role.Opposite()] = append(candidates[:best], candidates[best+1:]...)
	p.lastLinkAt = rx.HostTS
	p.stats.Links++

	return Link{TX: tx, RX: rx, Latency: bestLatency}, true
}

// OnRange reports a device-level ranging completion. If no link closed
// within the fallback horizon before it, a marker is returned.
func (p *Pairer) OnRange(ev wire.Event) (FallbackMarker, bool) {
	covered := !p.lastLinkAt.IsZero() &&
		ev.HostTS.Sub(p.lastLinkAt) <= p.fallbackHorizon
	if covered {
		return FallbackMarker{}, false
	}
	p.stats.Fallbacks++
	return FallbackMarker{Role: ev.Role, HostTS: ev.HostTS}, true
}

// Sweep expires pending TX events older than the horizon relative to now
// and returns how many were dropped by this call.
func (p *Pairer) Sweep(now time.Time) int {
	expired := 0
	for role, candidates := range p.pending {
		cut := 0
		for cut < len(candidates) && now.Sub(candidates[cut].HostTS) > p.horizon {
			cut++
		}
		if cut > 0 {
			p.pending[role] = append(candidates[:0:0], candidates[cut:]...)
			expired += cut
		}
	}
	if expired > 0 {
		p.stats.ExpiredTX += uint64(expired)
	}
	return expired
}

// PendingLen returns the number of unconsumed TX candidates for a role.
func (p *Pairer) PendingLen(role wire.Role) int {
	return len(p.pending[role])
}

// LastLinkAt returns the host stamp of the most recent link closure, zero
// if none has closed yet.
func (p *Pairer) LastLinkAt() time.Time {
	return p.lastLinkAt
}

// Stats returns a copy of the outcome counters.
func (p *Pairer) Stats() Stats {
	return p.stats
}
