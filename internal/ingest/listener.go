// Package ingest owns the UDP transport and the single ingestion stage.
//
// One goroutine reads datagrams, splits them into lines, parses each line
// and stamps it with the authoritative host timestamp and ingestion
// sequence before handing it to the engine queue. Because there is exactly
// one reader, the sequence numbers reflect arrival order on the socket.
// The reader never blocks on the queue: when the engine falls behind, the
// newest event is dropped and counted.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/otel"
	"github.com/Duck-YP/ESP32-UWB-program/internal/peers"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ring"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"

	"go.uber.org/zap"
)

// maxDatagram comfortably holds the largest burst a device sends in one
// packet. UDP payloads beyond 64 KiB cannot exist.
const maxDatagram = 64 * 1024

// Config carries the transport settings the listener needs.
type Config struct {
	// Addr is the UDP listen address, for example ":9021".
	Addr string
	// EchoRaw logs every accepted line at Info level.
	EchoRaw bool
	// Now stamps accepted events. Defaults to time.Now.
	Now func() time.Time
}

// Stats is a point-in-time snapshot of the transport counters.
type Stats struct {
	Ingested    uint64 `json:"ingested"`
	ParseErrors uint64 `json:"parse_errors"`
	QueueDrops  uint64 `json:"queue_drops"`
}

// Listener reads telemetry lines off the UDP socket and feeds the engine
// queue. It is the sole producer of the queue and of sequence numbers.
type Listener struct {
	conn    *net.UDPConn
	queue   *ring.Buffer[wire.Event]
	bell    ring.Doorbell
	peers   *peers.Table
	metrics *otel.Metrics
	logger  *zap.Logger
	now     func() time.Time
	echoRaw bool

	seq         atomic.Uint64
	ingested    atomic.Uint64
	parseErrors atomic.Uint64
	queueDrops  atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New binds the UDP socket. Reading does not start until Start is called.
func New(cfg Config, queue *ring.Buffer[wire.Event], bell ring.Doorbell, table *peers.Table, metrics *otel.Metrics, logger *zap.Logger) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("resolving listen address %q: %w", cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", cfg.Addr, err)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Listener{
		conn:    conn,
		queue:   queue,
		bell:    bell,
		peers:   table,
		metrics: metrics,
		logger:  logger,
		now:     now,
		echoRaw: cfg.EchoRaw,
		done:    make(chan struct{}),
	}, nil
}

// Addr returns the bound address, which carries the kernel-chosen port
// when the configured address used port 0.
func (l *Listener) Addr() string {
	return l.conn.LocalAddr().String()
}

// Start begins reading datagrams in the background until the context is
// cancelled or Stop is called.
func (l *Listener) Start(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			_ = l.conn.Close()
		case <-l.done:
		}
	}()
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.readLoop()
	}()

	l.logger.Info("listening for device telemetry", zap.String("addr", l.Addr()))
	return nil
}

// Stop closes the socket, which unblocks the read loop, and waits for the
// loop to exit so nothing is pushed after Stop returns. Safe to call more
// than once.
func (l *Listener) Stop() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
		l.wg.Wait()
	})
	return err
}

// Stats returns the transport counters.
func (l *Listener) Stats() Stats {
	return Stats{
		Ingested:    l.ingested.Load(),
		ParseErrors: l.parseErrors.Load(),
		QueueDrops:  l.queueDrops.Load(),
	}
}

func (l *Listener) readLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("udp read failed", zap.Error(err))
			continue
		}
		l.ingestDatagram(buf[:n], src)
	}
}

// ingestDatagram handles one packet. Devices batch several lines per
// datagram under load, so each line is parsed and stamped on its own.
func (l *Listener) ingestDatagram(data []byte, src *net.UDPAddr) {
	ctx := context.Background()

	for _, raw := range bytes.Split(data, []byte{'\n'}) {
		ev, err := wire.ParseLine(string(raw))
		if err != nil {
			if errors.Is(err, wire.ErrEmptyLine) {
				continue
			}
			l.parseErrors.Add(1)
			l.metrics.RecordDropped(ctx, "parse")
			logDrop := l.logger.Debug
			if l.echoRaw {
				logDrop = l.logger.Warn
			}
			logDrop("dropping unparseable line",
				zap.String("line", string(bytes.TrimSpace(raw))),
				zap.Error(err),
			)
			continue
		}

		ev.HostTS = l.now()
		ev.Seq = l.seq.Add(1)

		l.peers.Observe(ev.Role, src.String(), ev.HostTS)
		if l.echoRaw {
			l.logger.Info("rx", zap.String("from", src.String()), zap.String("line", ev.Raw))
		}

		if !l.queue.TryPush(ev) {
			l.queueDrops.Add(1)
			l.metrics.RecordDropped(ctx, "queue_full")
			l.logger.Warn("event queue full, dropping newest",
				zap.Uint64("seq", ev.Seq),
				zap.String("role", ev.Role.String()),
			)
			continue
		}
		l.ingested.Add(1)
		l.metrics.RecordIngested(ctx, ev.Role.String())
		l.bell.Ring()
	}
}
