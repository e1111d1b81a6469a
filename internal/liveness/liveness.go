// Package liveness tracks per-role heartbeat recency. A role is considered
// down once no heartbeat has arrived for more than twice the expected
// interval. Ordinary traffic updates the last-seen stamp for display, but
// only heartbeats keep a role up: a device whose firmware stopped emitting
// them reads as down even while its radio events still flow.
package liveness

import (
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// RoleStatus is the point-in-time liveness view of one role.
type RoleStatus struct {
	Role          wire.Role `json:"role"`
	EverSeen      bool      `json:"ever_seen"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	LastSeen      time.Time `json:"last_seen"`
	Down          bool      `json:"down"`
}

type roleState struct {
	lastHeartbeat time.Time
	lastSeen      time.Time
}

// Monitor holds the heartbeat bookkeeping for both roles. It is owned by
// the consumer stage and is not safe for concurrent use.
type Monitor struct {
	interval time.Duration
	started  time.Time
	states   map[wire.Role]*roleState
}

// New returns a monitor expecting one heartbeat per role every interval.
// started anchors the grace period before the first heartbeat.
func New(interval time.Duration, started time.Time) *Monitor {
	return &Monitor{
		interval: interval,
		started:  started,
		states:   make(map[wire.Role]*roleState),
	}
}

func (m *Monitor) state(role wire.Role) *roleState {
	st, ok := m.states[role]
	if !ok {
		st = &roleState{}
		m.states[role] = st
	}
	return st
}

// ObserveHeartbeat records a heartbeat stamped with the authoritative host
// timestamp. Stale stamps never rewind the bookkeeping.
func (m *Monitor) ObserveHeartbeat(role wire.Role, ts time.Time) {
	st := m.state(role)
	if ts.After(st.lastHeartbeat) {
		st.lastHeartbeat = ts
	}
	if ts.After(st.lastSeen) {
		st.lastSeen = ts
	}
}

// ObserveTraffic records that any record arrived for the role.
func (m *Monitor) ObserveTraffic(role wire.Role, ts time.Time) {
	st := m.state(role)
	if ts.After(st.lastSeen) {
		st.lastSeen = ts
	}
}

// Interval returns the expected heartbeat cadence.
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Status reports both roles in fixed order, TAG first. A role that has
// produced nothing is still listed so the caller can tell silence from
// absence.
func (m *Monitor) Status(now time.Time) []RoleStatus {
	out := make([]RoleStatus, 0, 2)
	for _, role := range []wire.Role{wire.RoleTag, wire.RoleAnchor} {
		out = append(out, m.roleStatus(role, now))
	}
	return out
}

func (m *Monitor) roleStatus(role wire.Role, now time.Time) RoleStatus {
	downAfter := 2 * m.interval

	st, ok := m.states[role]
	if !ok {
		return RoleStatus{
			Role: role,
			Down: now.Sub(m.started) > downAfter,
		}
	}

	// Before the first heartbeat the grace period runs from startup.
	ref := st.lastHeartbeat
	if ref.IsZero() {
		ref = m.started
	}
	return RoleStatus{
		Role:          role,
		EverSeen:      true,
		LastHeartbeat: st.lastHeartbeat,
		LastSeen:      st.lastSeen,
		Down:          now.Sub(ref) > downAfter,
	}
}
