package liveness

import (
	"testing"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

var start = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func statusOf(t *testing.T, m *Monitor, role wire.Role, now time.Time) RoleStatus {
	t.Helper()
	for _, st := range m.Status(now) {
		if st.Role == role {
			return st
		}
	}
	t.Fatalf("Status() missing role %v", role)
	return RoleStatus{}
}

func TestMonitor_FreshHeartbeatKeepsRoleUp(t *testing.T) {
	m := New(5*time.Second, start)

	m.ObserveHeartbeat(wire.RoleTag, start.Add(2*time.Second))

	st := statusOf(t, m, wire.RoleTag, start.Add(7*time.Second))
	if st.Down {
		t.Error("role down 5s after a heartbeat with a 10s bound")
	}
	if !st.EverSeen {
		t.Error("EverSeen = false after a heartbeat")
	}
}

func TestMonitor_DownBoundIsStrictlyTwiceInterval(t *testing.T) {
	m := New(5*time.Second, start)
	hb := start.Add(time.Second)
	m.ObserveHeartbeat(wire.RoleAnchor, hb)

	if st := statusOf(t, m, wire.RoleAnchor, hb.Add(10*time.Second)); st.Down {
		t.Error("down at exactly 2x interval, want up")
	}
	if st := statusOf(t, m, wire.RoleAnchor, hb.Add(10*time.Second+time.Millisecond)); !st.Down {
		t.Error("up past 2x interval, want down")
	}
}

func TestMonitor_StartupGraceBeforeFirstHeartbeat(t *testing.T) {
	m := New(5*time.Second, start)

	if st := statusOf(t, m, wire.RoleTag, start.Add(9*time.Second)); st.Down {
		t.Error("down during startup grace, want up")
	}
	if st := statusOf(t, m, wire.RoleTag, start.Add(11*time.Second)); !st.Down {
		t.Error("up after grace expired with no heartbeat, want down")
	}
}

func TestMonitor_TrafficAloneNeverClearsDown(t *testing.T) {
	m := New(5*time.Second, start)

	now := start.Add(30 * time.Second)
	m.ObserveTraffic(wire.RoleTag, now)

	st := statusOf(t, m, wire.RoleTag, now)
	if !st.Down {
		t.Error("traffic without heartbeats kept the role up")
	}
	if !st.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", st.LastSeen, now)
	}
	if !st.LastHeartbeat.IsZero() {
		t.Errorf("LastHeartbeat = %v, want zero", st.LastHeartbeat)
	}
}

func TestMonitor_HeartbeatRecoversDownRole(t *testing.T) {
	m := New(5*time.Second, start)

	m.ObserveHeartbeat(wire.RoleAnchor, start.Add(time.Second))
	late := start.Add(time.Minute)
	if st := statusOf(t, m, wire.RoleAnchor, late); !st.Down {
		t.Fatal("role not down after a minute of silence")
	}

	m.ObserveHeartbeat(wire.RoleAnchor, late)
	if st := statusOf(t, m, wire.RoleAnchor, late.Add(time.Second)); st.Down {
		t.Error("role still down after a fresh heartbeat")
	}
}

func TestMonitor_StaleStampsDoNotRewind(t *testing.T) {
	m := New(5*time.Second, start)

	m.ObserveHeartbeat(wire.RoleTag, start.Add(10*time.Second))
	m.ObserveHeartbeat(wire.RoleTag, start.Add(4*time.Second))

	st := statusOf(t, m, wire.RoleTag, start.Add(11*time.Second))
	if !st.LastHeartbeat.Equal(start.Add(10 * time.Second)) {
		t.Errorf("LastHeartbeat = %v, want the newer stamp", st.LastHeartbeat)
	}
}

func TestMonitor_ListsBothRolesAlways(t *testing.T) {
	m := New(5*time.Second, start)
	m.ObserveHeartbeat(wire.RoleTag, start)

	sts := m.Status(start.Add(time.Second))
	if len(sts) != 2 {
		t.Fatalf("Status() returned %d roles, want 2", len(sts))
	}
	if sts[0].Role != wire.RoleTag || sts[1].Role != wire.RoleAnchor {
		t.Errorf("role order = %v, %v; want TAG then ANCHOR", sts[0].Role, sts[1].Role)
	}
	if sts[1].EverSeen {
		t.Error("anchor reported seen with no records")
	}
}
