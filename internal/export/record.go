package export

import (
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/pairing"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Notes attached to exported records.
const (
	// NoteLate marks a record that arrived behind the role's clock but was
	// admitted by the permissive reorder guard.
	NoteLate = "late"
	// NoteFallback marks a RANGE record that had to stand in for a missing
	// TX/RX link.
	NoteFallback = "fallback"
)

// Record is one exported row: the accepted event plus whatever the pairing
// stage derived from it. For an RX that closed a link, PairedSeq names the
// TX it was joined to and Latency the TX-to-RX gap.
type Record struct {
	Event     wire.Event
	Paired    bool
	PairedSeq uint64
	Latency   time.Duration
	Note      string
}

// Sink receives records in receipt order. Implementations must not block
// the caller; they degrade or shed load internally.
type Sink interface {
	Export(rec Record) error
	Close() error
}

// LinkSink receives closed links. Same contract as Sink: never block the
// caller.
type LinkSink interface {
	ExportLink(link pairing.Link) error
	Close() error
}
