package export

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Duck-YP/ESP32-UWB-program/internal/pairing"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"
)

const archiveSchema = `
CREATE TABLE IF NOT EXISTS runs (
  run_id        TEXT PRIMARY KEY,
  started_at_us INTEGER NOT NULL,
  config_json   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS links (
  run_id     TEXT NOT NULL,
  tx_seq     INTEGER NOT NULL,
  rx_seq     INTEGER NOT NULL,
  tx_role    TEXT NOT NULL,
  latency_us INTEGER NOT NULL,
  tx_dev_ts  INTEGER NOT NULL,
  rx_dev_ts  INTEGER NOT NULL,
  tx_host_us INTEGER NOT NULL,
  rx_host_us INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS links_run_idx ON links(run_id);
`

const insertLinkSQL = `
INSERT INTO links (run_id, tx_seq, rx_seq, tx_role, latency_us,
                   tx_dev_ts, rx_dev_ts, tx_host_us, rx_host_us)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func toMicros(value time.Time) int64 {
	return value.UTC().UnixMicro()
}

func fromMicros(value int64) time.Time {
	return time.UnixMicro(value).UTC()
}

// ArchiveConfig configures the cross-run link archive.
type ArchiveConfig struct {
	Path       string // SQLite file, created if missing
	RunID      string
	ConfigJSON string // run configuration recorded alongside the run row
	FlushEvery int    // links batched per transaction
	QueueSize  int
}

// Archive persists closed links to SQLite so runs can be compared with
// plain SQL afterwards. Like the CSV writer it accepts links over a
// bounded queue served by one goroutine and never blocks the caller;
// inserts are batched into transactions. An insert failure disables the
// archive for the rest of the run.
type Archive struct {
	logger     *zap.Logger
	db         *sql.DB
	runID      string
	flushEvery int

	jobs chan pairing.Link
	wg   sync.WaitGroup

	stored   atomic.Uint64
	dropped  atomic.Uint64
	disabled atomic.Bool
}

// OpenArchive opens (or creates) the archive database, applies the schema
// and records the run row, then starts the insert goroutine.
func OpenArchive(cfg ArchiveConfig, logger *zap.Logger) (*Archive, error) {
	dsn := "file:" + cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging archive db: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying archive schema: %w", err)
	}

	_, err = db.Exec(
		`INSERT INTO runs (run_id, started_at_us, config_json) VALUES (?, ?, ?)`,
		cfg.RunID, toMicros(time.Now()), cfg.ConfigJSON,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recording run %s: %w", cfg.RunID, err)
	}

	a := &Archive{
		logger:     logger,
		db:         db,
		runID:      cfg.RunID,
		flushEvery: cfg.FlushEvery,
		jobs:       make(chan pairing.Link, cfg.QueueSize),
	}

	a.wg.Add(1)
	go a.worker()

	logger.Info("link archive started",
		zap.String("path", cfg.Path),
		zap.String("run_id", cfg.RunID))

	return a, nil
}

// ExportLink queues a closed link for archival. It never blocks; when the
// queue is full the link is dropped and counted.
func (a *Archive) ExportLink(link pairing.Link) error {
	if a.disabled.Load() {
		return nil
	}

	select {
	case a.jobs <- link:
		return nil
	default:
		a.dropped.Add(1)
		a.logger.Warn("archive queue full, dropping link",
			zap.Uint64("rx_seq", link.RX.Seq),
			zap.Uint64("dropped_total", a.dropped.Load()))
		return nil
	}
}

// Close drains the queue, flushes the final batch and closes the database.
// The caller must stop calling ExportLink first.
func (a *Archive) Close() error {
	close(a.jobs)
	a.wg.Wait()

	err := a.db.Close()

	a.logger.Info("link archive closed",
		zap.String("run_id", a.runID),
		zap.Uint64("links", a.stored.Load()),
		zap.Uint64("dropped", a.dropped.Load()))

	return err
}

// Stored reports links committed so far.
func (a *Archive) Stored() uint64 {
	return a.stored.Load()
}

// Dropped reports links shed on a full queue.
func (a *Archive) Dropped() uint64 {
	return a.dropped.Load()
}

// Disabled reports whether an insert failure has turned the archive off.
func (a *Archive) Disabled() bool {
	return a.disabled.Load()
}

func (a *Archive) worker() {
	defer a.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]pairing.Link, 0, a.flushEvery)
	for {
		select {
		case link, ok := <-a.jobs:
			if !ok {
				a.flushBatch(batch)
				return
			}
			batch = append(batch, link)
			if len(batch) >= a.flushEvery {
				a.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (a *Archive) flushBatch(batch []pairing.Link) {
	if a.disabled.Load() || len(batch) == 0 {
		return
	}
	if err := a.insertBatch(batch); err != nil {
		a.disable(err)
	}
}

func (a *Archive) insertBatch(batch []pairing.Link) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning archive batch: %w", err)
	}

	stmt, err := tx.Prepare(insertLinkSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing archive insert: %w", err)
	}

	for _, link := range batch {
		_, err := stmt.Exec(
			a.runID,
			int64(link.TX.Seq), //nolint:gosec // sequence numbers stay far below int64 range
			int64(link.RX.Seq), //nolint:gosec
			link.TX.Role.String(),
			link.Latency.Microseconds(),
			int64(link.TX.DeviceTS), //nolint:gosec // 40-bit stamps fit int64
			int64(link.RX.DeviceTS), //nolint:gosec
			toMicros(link.TX.HostTS),
			toMicros(link.RX.HostTS),
		)
		if err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return fmt.Errorf("inserting link: %w", err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("closing archive insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive batch: %w", err)
	}

	a.stored.Add(uint64(len(batch)))
	return nil
}

func (a *Archive) disable(err error) {
	if a.disabled.Swap(true) {
		return
	}
	a.logger.Error("archive insert failed, disabling archive for this run",
		zap.String("run_id", a.runID),
		zap.Error(err))
}

// ArchivedLink is one row read back from the links table.
type ArchivedLink struct {
	RunID   string
	TXSeq   uint64
	RXSeq   uint64
	TXRole  wire.Role
	Latency time.Duration
	TXDevTS uint64
	RXDevTS uint64
	TXHost  time.Time
	RXHost  time.Time
}

// Links reads back the archived links of a run in insertion order.
func (a *Archive) Links(ctx context.Context, runID string) ([]ArchivedLink, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT run_id, tx_seq, rx_seq, tx_role, latency_us,
		        tx_dev_ts, rx_dev_ts, tx_host_us, rx_host_us
		   FROM links
		  WHERE run_id = ?
		  ORDER BY rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var out []ArchivedLink
	for rows.Next() {
		var link ArchivedLink
		var txSeq, rxSeq, latencyUS, txDev, rxDev, txHostUS, rxHostUS int64
		var roleText string
		err := rows.Scan(&link.RunID, &txSeq, &rxSeq, &roleText, &latencyUS,
			&txDev, &rxDev, &txHostUS, &rxHostUS)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		role, err := wire.ParseRole(roleText)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		link.TXSeq = uint64(txSeq) //nolint:gosec // stored from uint64
		link.RXSeq = uint64(rxSeq) //nolint:gosec
		link.TXRole = role
		link.Latency = time.Duration(latencyUS) * time.Microsecond
		link.TXDevTS = uint64(txDev) //nolint:gosec
		link.RXDevTS = uint64(rxDev) //nolint:gosec
		link.TXHost = fromMicros(txHostUS)
		link.RXHost = fromMicros(rxHostUS)
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}
	return out, nil
}
