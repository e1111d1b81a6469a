package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var csvHeader = []string{
	"run_id", "seq", "role", "kind", "dev_ts",
	"host_ts_us", "latency_us", "paired_seq", "note",
}

// flushInterval bounds how stale the file can get at low event rates,
// where the flush-every-N threshold would take too long to reach.
const flushInterval = 2 * time.Second

// CSVConfig configures a capture-run CSV file.
type CSVConfig struct {
	Path       string // explicit file; when empty a run-stamped name goes under Dir
	Dir        string // created if missing
	RunID      string
	FlushEvery int // rows buffered between flushes
	QueueSize  int // records buffered between caller and writer goroutine
}

// CSVWriter appends records to one CSV file per capture run. Export hands
// the record to a single background goroutine over a bounded queue and
// never blocks: when the queue is full the record is dropped and counted.
// The single goroutine keeps rows in receipt order. A write failure logs
// once and disables the sink for the rest of the run.
type CSVWriter struct {
	logger     *zap.Logger
	path       string
	runID      string
	flushEvery int

	file *os.File
	w    *csv.Writer

	jobs chan Record
	wg   sync.WaitGroup

	pending  int // rows written since the last flush, worker-owned
	written  atomic.Uint64
	dropped  atomic.Uint64
	disabled atomic.Bool
}

// NewCSVWriter opens the run's file, writes the header row and starts the
// writer goroutine. Without an explicit path the file is named after the
// run so repeated captures into the same directory never collide.
func NewCSVWriter(cfg CSVConfig, logger *zap.Logger) (*CSVWriter, error) {
	path := cfg.Path
	if path == "" {
		name := fmt.Sprintf("uwb_%s_%s.csv", cfg.RunID, time.Now().UTC().Format("20060102T150405Z"))
		path = filepath.Join(cfg.Dir, name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory %s: %w", filepath.Dir(path), err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating export file %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("writing export header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("writing export header: %w", err)
	}

	c := &CSVWriter{
		logger:     logger,
		path:       path,
		runID:      cfg.RunID,
		flushEvery: cfg.FlushEvery,
		file:       file,
		w:          w,
		jobs:       make(chan Record, cfg.QueueSize),
	}

	c.wg.Add(1)
	go c.worker()

	logger.Info("csv export started",
		zap.String("path", path),
		zap.Int("flush_every", cfg.FlushEvery),
		zap.Int("queue_size", cfg.QueueSize))

	return c, nil
}

// Path returns the file this run exports to.
func (c *CSVWriter) Path() string {
	return c.path
}

// Export queues a record for the writer goroutine. It never blocks; when
// the queue is full the record is dropped and counted.
func (c *CSVWriter) Export(rec Record) error {
	if c.disabled.Load() {
		return nil
	}

	select {
	case c.jobs <- rec:
		return nil
	default:
		c.dropped.Add(1)
		c.logger.Warn("csv export queue full, dropping record",
			zap.Uint64("seq", rec.Event.Seq),
			zap.Uint64("dropped_total", c.dropped.Load()))
		return nil
	}
}

// Close drains the queue, flushes and closes the file. The caller must
// stop calling Export first.
func (c *CSVWriter) Close() error {
	close(c.jobs)
	c.wg.Wait()

	c.w.Flush()
	flushErr := c.w.Error()
	closeErr := c.file.Close()

	c.logger.Info("csv export closed",
		zap.String("path", c.path),
		zap.Uint64("rows", c.written.Load()),
		zap.Uint64("dropped", c.dropped.Load()))

	return errors.Join(flushErr, closeErr)
}

// Written reports rows handed to the encoder so far.
func (c *CSVWriter) Written() uint64 {
	return c.written.Load()
}

// Dropped reports records shed on a full queue.
func (c *CSVWriter) Dropped() uint64 {
	return c.dropped.Load()
}

// Disabled reports whether a write failure has turned the sink off.
func (c *CSVWriter) Disabled() bool {
	return c.disabled.Load()
}

func (c *CSVWriter) worker() {
	defer c.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-c.jobs:
			if !ok {
				return
			}
			c.writeRow(rec)
		case <-ticker.C:
			if c.pending > 0 {
				c.flush()
			}
		}
	}
}

func (c *CSVWriter) writeRow(rec Record) {
	if c.disabled.Load() {
		return // keep draining so Close does not stall
	}

	if err := c.w.Write(c.row(rec)); err != nil {
		c.disable(err)
		return
	}
	c.written.Add(1)
	c.pending++
	if c.pending >= c.flushEvery {
		c.flush()
	}
}

func (c *CSVWriter) flush() {
	c.w.Flush()
	c.pending = 0
	if err := c.w.Error(); err != nil {
		c.disable(err)
	}
}

// disable turns the sink off for the rest of the run. Ingestion and
// pairing are unaffected; only persistence stops.
func (c *CSVWriter) disable(err error) {
	if c.disabled.Swap(true) {
		return
	}
	c.logger.Error("csv export write failed, disabling export for this run",
		zap.String("path", c.path),
		zap.Error(err))
}

func (c *CSVWriter) row(rec Record) []string {
	latency, pairedSeq := "", ""
	if rec.Paired {
		latency = strconv.FormatInt(rec.Latency.Microseconds(), 10)
		pairedSeq = strconv.FormatUint(rec.PairedSeq, 10)
	}
	return []string{
		c.runID,
		strconv.FormatUint(rec.Event.Seq, 10),
		rec.Event.Role.String(),
		rec.Event.Kind.String(),
		strconv.FormatUint(rec.Event.DeviceTS, 10),
		strconv.FormatInt(rec.Event.HostTS.UnixMicro(), 10),
		latency,
		pairedSeq,
		rec.Note,
	}
}
