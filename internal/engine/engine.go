// Package engine runs the single consumer of the ingestion queue.
//
// Every piece of pipeline state, the ordering guard, the pairer, the rate
// buckets, the replay buffers and the liveness monitor, is owned by one
// goroutine and touched only from it. Nothing here takes a lock. The rest
// of the process observes the engine through immutable snapshots
// published at every tick.
package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/config"
	"github.com/Duck-YP/ESP32-UWB-program/internal/devclock"
	"github.com/Duck-YP/ESP32-UWB-program/internal/export"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ingest"
	"github.com/Duck-YP/ESP32-UWB-program/internal/liveness"
	"github.com/Duck-YP/ESP32-UWB-program/internal/otel"
	"github.com/Duck-YP/ESP32-UWB-program/internal/pairing"
	"github.com/Duck-YP/ESP32-UWB-program/internal/peers"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ratestats"
	"github.com/Duck-YP/ESP32-UWB-program/internal/reorder"
	"github.com/Duck-YP/ESP32-UWB-program/internal/replay"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ring"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"

	"go.uber.org/zap"
)

// ratesRetention bounds the per-second traffic buckets. The replay window
// is configurable; the rate view is fixed at one minute.
const ratesRetention = time.Minute

// Deps wires the engine to the transport, the sinks and the telemetry.
// Records, Archive, Spans, Filter, Metrics, Ingest and Sinks may be nil
// or unset; the engine skips what is absent.
type Deps struct {
	Queue   *ring.Buffer[wire.Event]
	Bell    ring.Doorbell
	Peers   *peers.Table
	Ingest  func() ingest.Stats
	Records export.Sink
	Archive export.LinkSink
	Spans   export.LinkSink
	Filter  *export.Filter
	Metrics *otel.Metrics
	Sinks   func() SinkStats
	Logger  *zap.Logger
	Now     func() time.Time
}

// Engine consumes stamped events and maintains the link-health state.
type Engine struct {
	runID     string
	tickEvery time.Duration

	queue       *ring.Buffer[wire.Event]
	bell        ring.Doorbell
	peers       *peers.Table
	ingestStats func() ingest.Stats
	records     export.Sink
	archive     export.LinkSink
	spans       export.LinkSink
	filter      *export.Filter
	metrics     *otel.Metrics
	sinkStats   func() SinkStats
	logger      *zap.Logger
	now         func() time.Time

	guard     *reorder.Guard
	pairer    *pairing.Pairer
	rates     *ratestats.Aggregator
	events    *replay.Buffer[wire.Event]
	links     *replay.Buffer[pairing.Link]
	alive     *liveness.Monitor
	lastTXDev map[wire.Role]uint64
	cadence   map[wire.Role]time.Duration
	counters  Counters
	lastLink  *pairing.Link
	started   time.Time

	snap atomic.Pointer[Snapshot]
}

// New builds an Engine. Snapshot is valid immediately; Run starts
// consuming.
func New(cfg *config.Config, deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Peers == nil {
		deps.Peers = peers.NewTable()
	}
	started := deps.Now()

	e := &Engine{
		runID:       cfg.RunID,
		tickEvery:   cfg.Pipeline.Tick,
		queue:       deps.Queue,
		bell:        deps.Bell,
		peers:       deps.Peers,
		ingestStats: deps.Ingest,
		records:     deps.Records,
		archive:     deps.Archive,
		spans:       deps.Spans,
		filter:      deps.Filter,
		metrics:     deps.Metrics,
		sinkStats:   deps.Sinks,
		logger:      deps.Logger,
		now:         deps.Now,

		guard:     reorder.NewGuard(cfg.Pipeline.ReorderSlack, cfg.Pipeline.StrictOrder),
		pairer:    pairing.New(cfg.Pipeline.PairingHorizon, cfg.Pipeline.FallbackHorizon),
		rates:     ratestats.New(ratesRetention),
		events:    replay.New(cfg.Pipeline.ReplayWindow, func(ev wire.Event) time.Time { return ev.HostTS }),
		links:     replay.New(cfg.Pipeline.ReplayWindow, func(l pairing.Link) time.Time { return l.RX.HostTS }),
		alive:     liveness.New(cfg.Pipeline.HeartbeatInterval, started),
		lastTXDev: make(map[wire.Role]uint64),
		cadence:   make(map[wire.Role]time.Duration),
		started:   started,
	}
	e.publish(started)
	return e
}

// Snapshot returns the most recently published state. Never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.snap.Load()
}

// Run consumes the queue until the context is cancelled, then drains
// whatever the transport already delivered, publishes a final snapshot
// and logs the run summary. The caller stops the listener before
// cancelling, which bounds the drain.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.tick(e.now())
			e.logSummary()
			return nil
		case <-e.bell.Wait():
			e.drain()
		case <-ticker.C:
			e.tick(e.now())
		}
	}
}

func (e *Engine) drain() {
	for {
		ev, ok := e.queue.TryPop()
		if !ok {
			return
		}
		e.process(ev)
	}
}

// process routes one event through every stage. Runs only on the consumer
// goroutine.
func (e *Engine) process(ev wire.Event) {
	ctx := context.Background()

	var notes []string
	switch e.guard.Check(ev.Role, ev.HostTS) {
	case reorder.LateDrop:
		e.counters.LateDropped++
		e.metrics.RecordDropped(ctx, "late")
		e.logger.Debug("dropping out-of-order event",
			zap.Uint64("seq", ev.Seq),
			zap.String("role", ev.Role.String()),
		)
		return
	case reorder.LatePass:
		e.counters.LatePassed++
		notes = append(notes, export.NoteLate)
	}

	e.counters.Processed++
	e.events.Append(ev)
	e.rates.Observe(ev)

	rec := export.Record{Event: ev}
	var closed *pairing.Link

	switch ev.Kind {
	case wire.KindHeartbeat:
		e.counters.Heartbeats++
		e.alive.ObserveHeartbeat(ev.Role, ev.HostTS)
	case wire.KindTX:
		e.alive.ObserveTraffic(ev.Role, ev.HostTS)
		e.observeCadence(ev)
		e.pairer.OnTX(ev)
	case wire.KindRX:
		e.alive.ObserveTraffic(ev.Role, ev.HostTS)
		if link, ok := e.pairer.OnRX(ev); ok {
			closed = &link
			rec.Paired = true
			rec.PairedSeq = link.TX.Seq
			rec.Latency = link.Latency
		}
	case wire.KindRange:
		e.alive.ObserveTraffic(ev.Role, ev.HostTS)
		if _, fallback := e.pairer.OnRange(ev); fallback {
			e.metrics.RecordFallback(ctx)
			notes = append(notes, export.NoteFallback)
		}
	}
	rec.Note = strings.Join(notes, ",")

	if closed != nil {
		e.links.Append(*closed)
		e.lastLink = closed
		e.metrics.RecordLink(ctx, closed.Latency)
	}
	e.export(rec, closed)
}

// export fans one record out. Spans trace every closed link; the
// row-oriented sinks honor the configured predicate.
func (e *Engine) export(rec export.Record, closed *pairing.Link) {
	if closed != nil && e.spans != nil {
		if err := e.spans.ExportLink(*closed); err != nil {
			e.logger.Warn("emitting link span failed", zap.Error(err))
		}
	}

	if !e.filter.Keep(rec) {
		e.counters.FilteredOut++
		return
	}
	if e.records != nil {
		if err := e.records.Export(rec); err != nil {
			e.logger.Warn("exporting record failed", zap.Error(err))
		}
	}
	if closed != nil && e.archive != nil {
		if err := e.archive.ExportLink(*closed); err != nil {
			e.logger.Warn("archiving link failed", zap.Error(err))
		}
	}
}

// observeCadence derives the device-side transmit period from consecutive
// transceiver stamps of one role. Cross-role deltas mean nothing; the two
// transceiver clocks are unsynchronized.
func (e *Engine) observeCadence(ev wire.Event) {
	if prev, ok := e.lastTXDev[ev.Role]; ok {
		e.cadence[ev.Role] = devclock.DeltaDuration(prev, ev.DeviceTS)
	}
	e.lastTXDev[ev.Role] = ev.DeviceTS
}

// tick expires stale state and publishes a fresh snapshot.
func (e *Engine) tick(now time.Time) {
	e.pairer.Sweep(now)
	e.rates.Sweep(now)
	e.events.SweepTo(now)
	e.links.SweepTo(now)
	e.publish(now)
}

func (e *Engine) publish(now time.Time) {
	sinks := SinkStats{}
	if e.sinkStats != nil {
		sinks = e.sinkStats()
	}
	sinks.FilterErrors = e.filter.Errors()

	cadence := make(map[string]float64, len(e.cadence))
	for role, d := range e.cadence {
		cadence[role.String()] = float64(d.Microseconds()) / 1000.0
	}

	links := e.links.Snapshot()
	snap := &Snapshot{
		RunID:    e.runID,
		Started:  e.started,
		Now:      now,
		Engine:   e.counters,
		Pairing:  e.pairer.Stats(),
		Pending:  PendingView{Tag: e.pairer.PendingLen(wire.RoleTag), Anchor: e.pairer.PendingLen(wire.RoleAnchor)},
		Latency:  summarizeLatency(links),
		Cadence:  cadence,
		Rates:    e.rates.Snapshot(),
		Events:   eventViews(e.events.Snapshot()),
		Links:    linkViews(links),
		Liveness: e.alive.Status(now),
		Peers:    e.peers.Snapshot(),
		Export:   sinks,
	}
	if e.ingestStats != nil {
		snap.Ingest = e.ingestStats()
	}
	if e.lastLink != nil {
		v := viewOfLink(*e.lastLink)
		snap.LastLink = &v
	}
	e.snap.Store(snap)
}

func (e *Engine) logSummary() {
	stats := e.pairer.Stats()
	e.logger.Info("engine stopped",
		zap.Uint64("processed", e.counters.Processed),
		zap.Uint64("links", stats.Links),
		zap.Uint64("unpaired_rx", stats.UnpairedRX),
		zap.Uint64("expired_tx", stats.ExpiredTX),
		zap.Uint64("fallbacks", stats.Fallbacks),
		zap.Uint64("late_passed", e.counters.LatePassed),
		zap.Uint64("late_dropped", e.counters.LateDropped),
		zap.Duration("uptime", e.now().Sub(e.started)),
	)
}
