// Package peers remembers which network address each ranging role last
// spoke from. The listener goroutine records senders as datagrams arrive
// while the consumer stage reads the table when assembling snapshots, so
// unlike the rest of the pipeline state this table is lock-guarded.
package peers

import (
	"sync"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Info describes the sender observed for one role.
type Info struct {
	Role      wire.Role `json:"role"`
	Addr      string    `json:"addr"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Records   uint64    `json:"records"`
	// AddrChanges counts source-address flips, usually a device reboot
	// picking up a fresh DHCP lease.
	AddrChanges uint64 `json:"addr_changes"`
}

type peerState struct {
	addr        string
	firstSeen   time.Time
	lastSeen    time.Time
	records     uint64
	addrChanges uint64
}

// Table maps roles to their last known senders.
type Table struct {
	mu    sync.RWMutex
	peers map[wire.Role]*peerState
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{peers: make(map[wire.Role]*peerState)}
}

// Observe records that a parsed record for role arrived from addr (command).
func (t *Table) Observe(role wire.Role, addr string, ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.peers[role]
	if !ok {
		st = &peerState{addr: addr, firstSeen: ts}
		t.peers[role] = st
	} else if st.addr != addr {
		st.addr = addr
		st.addrChanges++
	}
	st.lastSeen = ts
	st.records++
}

// Get retrieves the sender info for a role (query). The second return is
// false when the role has never been heard from.
func (t *Table) Get(role wire.Role) (Info, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.peers[role]
	if !ok {
		return Info{}, false
	}
	return infoOf(role, st), true
}

// Snapshot lists the known senders in fixed role order (query).
func (t *Table) Snapshot() []Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Info, 0, len(t.peers))
	for _, role := range []wire.Role{wire.RoleTag, wire.RoleAnchor} {
		if st, ok := t.peers[role]; ok {
			out = append(out, infoOf(role, st))
		}
	}
	return out
}

func infoOf(role wire.Role, st *peerState) Info {
	return Info{
		Role:        role,
		Addr:        st.addr,
		FirstSeen:   st.firstSeen,
		LastSeen:    st.lastSeen,
		Records:     st.records,
		AddrChanges: st.addrChanges,
	}
}
