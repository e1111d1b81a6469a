// Package reorder flags records whose host timestamps run backwards.
//
// Host stamps are assigned at receipt, so a live feed is monotonic by
// construction and the guard stays quiet. It earns its keep on replayed
// captures and any future transport that carries sender-side stamps, where
// delivery order and timestamp order can disagree.
package reorder

import (
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Disposition is the guard's ruling on one record.
type Disposition uint8

const (
	// InOrder means the record advances or matches its role's clock.
	InOrder Disposition = iota
	// LatePass means the record is older than the role's clock by more than
	// the slack, but permissive mode lets it through flagged.
	LatePass
	// LateDrop means strict mode rejected the record; the caller must not
	// process it further.
	LateDrop
)

// Guard tracks the newest accepted host timestamp per role and rules on each
// incoming record. Roles are independent: a burst from one device never
// penalizes the other.
type Guard struct {
	slack  time.Duration
	strict bool
	latest map[wire.Role]time.Time
}

// NewGuard creates a Guard. Records may lag the role's newest accepted
// timestamp by up to slack before they count as late; strict selects
// dropping over flagging.
func NewGuard(slack time.Duration, strict bool) *Guard {
	return &Guard{
		slack:  slack,
		strict: strict,
		latest: make(map[wire.Role]time.Time),
	}
}

// Check rules on a record and advances the role's clock when appropriate.
// The clock only moves forward; a flagged-through late record never drags
// it back.
func (g *Guard) Check(role wire.Role, ts time.Time) Disposition {
	latest, seen := g.latest[role]
	if !seen || !ts.Add(g.slack).Before(latest) {
		if !seen || ts.After(latest) {
			g.latest[role] = ts
		}
		return InOrder
	}
	if g.strict {
		return LateDrop
	}
	return LatePass
}

// Latest returns the newest accepted timestamp for a role, if any.
func (g *Guard) Latest(role wire.Role) (time.Time, bool) {
	ts, ok := g.latest[role]
	return ts, ok
}
