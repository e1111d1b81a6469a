package engine

import (
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/ingest"
	"github.com/Duck-YP/ESP32-UWB-program/internal/liveness"
	"github.com/Duck-YP/ESP32-UWB-program/internal/pairing"
	"github.com/Duck-YP/ESP32-UWB-program/internal/peers"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ratestats"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

// Snapshot is the engine's published view of the run. Each tick replaces
// the whole value; readers hold a consistent picture for as long as they
// keep the pointer.
type Snapshot struct {
	RunID    string                `json:"run_id"`
	Started  time.Time             `json:"started"`
	Now      time.Time             `json:"now"`
	Ingest   ingest.Stats          `json:"ingest"`
	Engine   Counters              `json:"engine"`
	Pairing  pairing.Stats         `json:"pairing"`
	Pending  PendingView           `json:"pending"`
	LastLink *LinkView             `json:"last_link,omitempty"`
	Latency  LatencySummary        `json:"latency"`
	Cadence  map[string]float64    `json:"tx_cadence_ms"`
	Rates    []ratestats.Bucket    `json:"rates"`
	Events   []EventView           `json:"replay"`
	Links    []LinkView            `json:"links"`
	Liveness []liveness.RoleStatus `json:"liveness"`
	Peers    []peers.Info          `json:"peers"`
	Export   SinkStats             `json:"export"`
}

// Counters tracks what the consumer did with events it popped.
type Counters struct {
	Processed   uint64 `json:"processed"`
	Heartbeats  uint64 `json:"heartbeats"`
	LatePassed  uint64 `json:"late_passed"`
	LateDropped uint64 `json:"late_dropped"`
	FilteredOut uint64 `json:"filtered_out"`
}

// PendingView reports unconsumed pairing candidates per role.
type PendingView struct {
	Tag    int `json:"tag"`
	Anchor int `json:"anchor"`
}

// LatencySummary condenses the latencies of the links still inside the
// replay window.
type LatencySummary struct {
	Count  uint64  `json:"count"`
	MinUS  int64   `json:"min_us"`
	MeanUS float64 `json:"mean_us"`
	MaxUS  int64   `json:"max_us"`
}

// SinkStats reports exporter health. The engine fills FilterErrors; the
// sink owners supply the rest through Deps.Sinks.
type SinkStats struct {
	CSVPath        string `json:"csv_path,omitempty"`
	CSVWritten     uint64 `json:"csv_written"`
	CSVDropped     uint64 `json:"csv_dropped"`
	CSVDisabled    bool   `json:"csv_disabled"`
	ArchiveStored  uint64 `json:"archive_stored"`
	ArchiveDropped uint64 `json:"archive_dropped"`
	FilterErrors   uint64 `json:"filter_errors"`
}

// EventView is the JSON rendering of one replayed event.
type EventView struct {
	Seq       uint64    `json:"seq"`
	Role      wire.Role `json:"role"`
	Kind      wire.Kind `json:"kind"`
	DevTS     uint64    `json:"dev_ts,omitempty"`
	DevHostTS uint64    `json:"dev_host_ts,omitempty"`
	HostTS    time.Time `json:"host_ts"`
	Raw       string    `json:"raw"`
}

// LinkView is the JSON rendering of one closed link.
type LinkView struct {
	TXSeq     uint64    `json:"tx_seq"`
	RXSeq     uint64    `json:"rx_seq"`
	TXRole    wire.Role `json:"tx_role"`
	LatencyUS int64     `json:"latency_us"`
	TXDevTS   uint64    `json:"tx_dev_ts"`
	RXDevTS   uint64    `json:"rx_dev_ts"`
	TXHostTS  time.Time `json:"tx_host_ts"`
	RXHostTS  time.Time `json:"rx_host_ts"`
}

func viewOfEvent(ev wire.Event) EventView {
	return EventView{
		Seq:       ev.Seq,
		Role:      ev.Role,
		Kind:      ev.Kind,
		DevTS:     ev.DeviceTS,
		DevHostTS: ev.DeviceHostTS,
		HostTS:    ev.HostTS,
		Raw:       ev.Raw,
	}
}

func viewOfLink(link pairing.Link) LinkView {
	return LinkView{
		TXSeq:     link.TX.Seq,
		RXSeq:     link.RX.Seq,
		TXRole:    link.TX.Role,
		LatencyUS: link.Latency.Microseconds(),
		TXDevTS:   link.TX.DeviceTS,
		RXDevTS:   link.RX.DeviceTS,
		TXHostTS:  link.TX.HostTS,
		RXHostTS:  link.RX.HostTS,
	}
}

func eventViews(events []wire.Event) []EventView {
	views := make([]EventView, len(events))
	for i, ev := range events {
		views[i] = viewOfEvent(ev)
	}
	return views
}

func linkViews(links []pairing.Link) []LinkView {
	views := make([]LinkView, len(links))
	for i, link := range links {
		views[i] = viewOfLink(link)
	}
	return views
}

func summarizeLatency(links []pairing.Link) LatencySummary {
	var sum LatencySummary
	if len(links) == 0 {
		return sum
	}
	var total int64
	for i, link := range links {
		us := link.Latency.Microseconds()
		if i == 0 || us < sum.MinUS {
			sum.MinUS = us
		}
		if us > sum.MaxUS {
			sum.MaxUS = us
		}
		total += us
	}
	sum.Count = uint64(len(links))
	sum.MeanUS = float64(total) / float64(len(links))
	return sum
}
