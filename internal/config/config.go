// Package config assembles the runtime configuration of the monitor.
// Values resolve in four layers, each overriding the previous one:
// baked-in defaults, a .env file in the working directory, UWBMON_*
// environment variables, command-line flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// RunID names this capture run in file names, the archive and logs.
	// Generated when not supplied.
	RunID string `env:"UWBMON_RUN_ID" json:"run_id"`
	// Debug switches to the development logger and implies EchoRaw.
	Debug bool `env:"UWBMON_DEBUG" envDefault:"false" json:"debug"`

	Listen   Listen   `json:"listen"`
	Pipeline Pipeline `json:"pipeline"`
	Export   Export   `json:"export"`
	HTTP     HTTP     `json:"http"`
	OTel     OTel     `json:"otel"`
}

// Listen configures the UDP ingestion side.
type Listen struct {
	Port int `env:"UWBMON_LISTEN_PORT" envDefault:"9021" json:"port"`
	// QueueSize is the capacity of the ring between the listener and the
	// consumer stage. Must be a power of two.
	QueueSize int `env:"UWBMON_QUEUE_SIZE" envDefault:"4096" json:"queue_size"`
	// EchoRaw logs every raw datagram line before parsing.
	EchoRaw bool `env:"UWBMON_ECHO_RAW" envDefault:"false" json:"echo_raw"`
}

// Pipeline configures the consumer-stage semantics.
type Pipeline struct {
	PairingHorizon    time.Duration `env:"UWBMON_PAIRING_HORIZON" envDefault:"300ms" json:"pairing_horizon"`
	FallbackHorizon   time.Duration `env:"UWBMON_FALLBACK_HORIZON" envDefault:"1s" json:"fallback_horizon"`
	ReorderSlack      time.Duration `env:"UWBMON_REORDER_SLACK" envDefault:"0s" json:"reorder_slack"`
	StrictOrder       bool          `env:"UWBMON_STRICT_ORDER" envDefault:"false" json:"strict_order"`
	ReplayWindow      time.Duration `env:"UWBMON_REPLAY_WINDOW" envDefault:"60s" json:"replay_window"`
	HeartbeatInterval time.Duration `env:"UWBMON_HEARTBEAT_INTERVAL" envDefault:"5s" json:"heartbeat_interval"`
	Tick              time.Duration `env:"UWBMON_TICK" envDefault:"500ms" json:"tick"`
}

// Export configures the durable sinks.
type Export struct {
	// CSVPath is the CSV file to write. Empty picks a run-stamped name
	// under ResultsDir; the sentinel "none" disables CSV export.
	CSVPath    string `env:"UWBMON_CSV" envDefault:"" json:"csv_path"`
	ResultsDir string `env:"UWBMON_RESULTS_DIR" envDefault:"results" json:"results_dir"`
	FlushEvery int    `env:"UWBMON_CSV_FLUSH_EVERY" envDefault:"50" json:"flush_every"`
	// ArchiveDB is the SQLite link archive. Empty disables it.
	ArchiveDB string `env:"UWBMON_ARCHIVE_DB" envDefault:"" json:"archive_db"`
	// Filter is an expr predicate gating what reaches CSV and the archive.
	Filter    string `env:"UWBMON_EXPORT_FILTER" envDefault:"" json:"filter"`
	QueueSize int    `env:"UWBMON_EXPORT_QUEUE" envDefault:"1024" json:"queue_size"`
}

// HTTP configures the snapshot API. An empty address disables it.
type HTTP struct {
	Addr string `env:"UWBMON_HTTP_ADDR" envDefault:"" json:"addr"`
}

// Load resolves the configuration from defaults, .env, environment and
// flags, in that order. args is os.Args.
func Load(args []string) (*Config, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.IntVar(&cfg.Listen.Port, "listen-port", cfg.Listen.Port, "UDP port to listen on")
	fs.IntVar(&cfg.Listen.QueueSize, "queue-size", cfg.Listen.QueueSize, "ingestion ring capacity (power of two)")
	fs.BoolVar(&cfg.Listen.EchoRaw, "echo-raw", cfg.Listen.EchoRaw, "log raw datagram lines")
	fs.DurationVar(&cfg.Pipeline.PairingHorizon, "pairing-horizon", cfg.Pipeline.PairingHorizon, "max TX to RX latency for a link")
	fs.DurationVar(&cfg.Pipeline.FallbackHorizon, "fallback-horizon", cfg.Pipeline.FallbackHorizon, "link recency window for RANGE fallback")
	fs.DurationVar(&cfg.Pipeline.ReorderSlack, "reorder-slack", cfg.Pipeline.ReorderSlack, "tolerated backwards timestamp skew")
	fs.BoolVar(&cfg.Pipeline.StrictOrder, "strict-order", cfg.Pipeline.StrictOrder, "drop late events instead of flagging them")
	fs.DurationVar(&cfg.Pipeline.ReplayWindow, "replay-window", cfg.Pipeline.ReplayWindow, "replay and rate retention window")
	fs.DurationVar(&cfg.Pipeline.HeartbeatInterval, "heartbeat-interval", cfg.Pipeline.HeartbeatInterval, "expected heartbeat cadence")
	fs.DurationVar(&cfg.Pipeline.Tick, "tick", cfg.Pipeline.Tick, "sweep and snapshot cadence")
	fs.StringVar(&cfg.Export.CSVPath, "csv", cfg.Export.CSVPath, "CSV file (empty auto-names, \"none\" disables)")
	fs.StringVar(&cfg.Export.ResultsDir, "results-dir", cfg.Export.ResultsDir, "directory for auto-named CSV files")
	fs.IntVar(&cfg.Export.FlushEvery, "csv-flush-every", cfg.Export.FlushEvery, "CSV rows per flush")
	fs.StringVar(&cfg.Export.ArchiveDB, "archive-db", cfg.Export.ArchiveDB, "SQLite link archive (empty disables)")
	fs.StringVar(&cfg.Export.Filter, "export-filter", cfg.Export.Filter, "expr predicate over exported records")
	fs.IntVar(&cfg.Export.QueueSize, "export-queue", cfg.Export.QueueSize, "exporter queue capacity")
	fs.StringVar(&cfg.HTTP.Addr, "http-addr", cfg.HTTP.Addr, "snapshot API bind address (empty disables)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "development logging plus raw echo")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	if cfg.RunID == "" {
		cfg.RunID = strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	if cfg.Debug {
		cfg.Listen.EchoRaw = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d outside 1-65535", c.Listen.Port)
	}
	if c.Listen.QueueSize < 2 || c.Listen.QueueSize&(c.Listen.QueueSize-1) != 0 {
		return fmt.Errorf("queue size %d must be a power of two, at least 2", c.Listen.QueueSize)
	}
	if c.Pipeline.PairingHorizon <= 0 {
		return fmt.Errorf("pairing horizon %v must be positive", c.Pipeline.PairingHorizon)
	}
	if c.Pipeline.FallbackHorizon < c.Pipeline.PairingHorizon {
		return fmt.Errorf("fallback horizon %v narrower than pairing horizon %v",
			c.Pipeline.FallbackHorizon, c.Pipeline.PairingHorizon)
	}
	if c.Pipeline.ReorderSlack < 0 {
		return fmt.Errorf("reorder slack %v must not be negative", c.Pipeline.ReorderSlack)
	}
	if c.Pipeline.ReplayWindow <= 0 {
		return fmt.Errorf("replay window %v must be positive", c.Pipeline.ReplayWindow)
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval %v must be positive", c.Pipeline.HeartbeatInterval)
	}
	if c.Pipeline.Tick <= 0 {
		return fmt.Errorf("tick %v must be positive", c.Pipeline.Tick)
	}
	if c.Export.FlushEvery < 1 {
		return fmt.Errorf("csv flush threshold %d must be at least 1", c.Export.FlushEvery)
	}
	if c.Export.QueueSize < 1 {
		return fmt.Errorf("export queue size %d must be at least 1", c.Export.QueueSize)
	}
	return nil
}

// ListenAddr is the UDP bind address derived from the port.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Listen.Port)
}

// CSVEnabled reports whether CSV export is on.
func (c *Config) CSVEnabled() bool {
	return c.Export.CSVPath != "none"
}

// ArchiveEnabled reports whether the SQLite archive is on.
func (c *Config) ArchiveEnabled() bool {
	return c.Export.ArchiveDB != ""
}

// HTTPEnabled reports whether the snapshot API is on.
func (c *Config) HTTPEnabled() bool {
	return c.HTTP.Addr != ""
}

// JSON renders the effective configuration for the archive's run row.
func (c *Config) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}
