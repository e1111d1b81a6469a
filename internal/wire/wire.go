package wire

import (
	"fmt"
	"time"
)

// Role identifies which side of the two-way-ranging exchange produced a record.
type Role uint8

const (
	// RoleTag is the mobile device initiating ranging exchanges.
	RoleTag Role = iota + 1
	// RoleAnchor is the fixed device answering them.
	RoleAnchor
)

// String returns the wire spelling of the role.
func (r Role) String() string {
	switch r {
	case RoleTag:
		return "TAG"
	case RoleAnchor:
		return "ANCHOR"
	default:
		return fmt.Sprintf("ROLE(%d)", uint8(r))
	}
}

// MarshalText renders the role by its wire spelling in JSON output.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Opposite returns the other side of the exchange.
func (r Role) Opposite() Role {
	if r == RoleTag {
		return RoleAnchor
	}
	return RoleTag
}

// ParseRole decodes a wire role token. Tokens are uppercase and exact.
func ParseRole(s string) (Role, error) {
	switch s {
	case "TAG":
		return RoleTag, nil
	case "ANCHOR":
		return RoleAnchor, nil
	default:
		return 0, fmt.Errorf("role %q: %w", s, ErrUnknownRole)
	}
}

// Kind identifies what a record reports.
type Kind uint8

const (
	// KindTX reports a frame leaving the device's transceiver.
	KindTX Kind = iota + 1
	// KindRX reports a frame arriving at the device's transceiver.
	KindRX
	// KindRange reports that the device completed a full ranging solution.
	KindRange
	// KindHeartbeat is a periodic liveness beacon. It never participates in
	// pairing or rate accounting.
	KindHeartbeat
)

// String returns the canonical wire spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindTX:
		return "TX"
	case KindRX:
		return "RX"
	case KindRange:
		return "RANGE"
	case KindHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// MarshalText renders the kind by its wire spelling in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// kindAliases maps every accepted evt token to its canonical kind. Older
// firmware revisions emit the short or suffixed forms.
var kindAliases = map[string]Kind{
	"TX":        KindTX,
	"TXOK":      KindTX,
	"TX_DONE":   KindTX,
	"RX":        KindRX,
	"RV":        KindRX,
	"RCV":       KindRX,
	"RECV":      KindRX,
	"RANGE":     KindRange,
	"HEARTBEAT": KindHeartbeat,
	"HB":        KindHeartbeat,
}

// ParseKind decodes a wire evt token, accepting firmware aliases.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("evt %q: %w", s, ErrUnknownKind)
}

// Event is one telemetry record. ParseLine fills the wire fields; the
// ingestor stamps HostTS and Seq at receipt before the record enters the
// queue. Events travel by value and must stay cheap to copy.
type Event struct {
	Role Role
	Kind Kind

	// DeviceTS is the DW1000 transceiver timestamp carried by TX and RX
	// records. 40 bits, ~15.65 ps per tick, wraps every ~17.2 s. Diagnostic.
	DeviceTS uint64

	// DeviceHostTS is the device's own host clock reading, carried by RANGE
	// and optionally HEARTBEAT records. Diagnostic.
	DeviceHostTS uint64

	// HostTS is the authoritative receipt timestamp assigned by the ingestor.
	HostTS time.Time

	// Seq is the ingestion sequence number. Strictly increasing in arrival
	// order, never reused within a run.
	Seq uint64

	// Raw preserves the original line for echo and replay inspection.
	Raw string
}
