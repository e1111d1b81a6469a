// uwbmon ingests ESP32 UWB telemetry over UDP and tracks the health of
// the tag/anchor two-way-ranging link.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/api"
	"github.com/Duck-YP/ESP32-UWB-program/internal/config"
	"github.com/Duck-YP/ESP32-UWB-program/internal/engine"
	"github.com/Duck-YP/ESP32-UWB-program/internal/export"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ingest"
	"github.com/Duck-YP/ESP32-UWB-program/internal/otel"
	"github.com/Duck-YP/ESP32-UWB-program/internal/peers"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ring"
	"github.com/Duck-YP/ESP32-UWB-program/internal/wire"

	"go.uber.org/zap"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// sinkStats lets the engine snapshot exporter health without holding the
// concrete writers.
func sinkStats(csv *export.CSVWriter, archive *export.Archive) func() engine.SinkStats {
	return func() engine.SinkStats {
		var stats engine.SinkStats
		if csv != nil {
			stats.CSVPath = csv.Path()
			stats.CSVWritten = csv.Written()
			stats.CSVDropped = csv.Dropped()
			stats.CSVDisabled = csv.Disabled()
		}
		if archive != nil {
			stats.ArchiveStored = archive.Stored()
			stats.ArchiveDropped = archive.Dropped()
		}
		return stats
	}
}

func run() error {
	cfg, err := config.Load(os.Args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting uwbmon",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built", date),
		zap.String("run_id", cfg.RunID),
	)
	logger.Info("effective configuration", zap.String("config", cfg.JSON()))

	var providers *otel.Providers
	if cfg.OTel.Enabled {
		providers, err = otel.Init(context.Background(), &cfg.OTel, logger)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	metrics, err := otel.NewMetrics(providers.Meter())
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	filter, err := export.NewFilter(cfg.Export.Filter, logger)
	if err != nil {
		return err
	}

	var (
		csv     *export.CSVWriter
		records export.Sink
	)
	if cfg.CSVEnabled() {
		csv, err = export.NewCSVWriter(export.CSVConfig{
			Path:       cfg.Export.CSVPath,
			Dir:        cfg.Export.ResultsDir,
			RunID:      cfg.RunID,
			FlushEvery: cfg.Export.FlushEvery,
			QueueSize:  cfg.Export.QueueSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("opening csv export: %w", err)
		}
		records = csv
	}

	var (
		archive  *export.Archive
		archived export.LinkSink
	)
	if cfg.ArchiveEnabled() {
		archive, err = export.OpenArchive(export.ArchiveConfig{
			Path:       cfg.Export.ArchiveDB,
			RunID:      cfg.RunID,
			ConfigJSON: cfg.JSON(),
			FlushEvery: cfg.Export.FlushEvery,
			QueueSize:  cfg.Export.QueueSize,
		}, logger)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		archived = archive
	}

	var spans export.LinkSink
	if cfg.OTel.Enabled {
		spans = export.NewSpanEmitter(providers.Tracer())
	}

	queue, err := ring.New[wire.Event](cfg.Listen.QueueSize)
	if err != nil {
		return err
	}
	bell := ring.NewDoorbell()
	table := peers.NewTable()

	listener, err := ingest.New(ingest.Config{
		Addr:    cfg.ListenAddr(),
		EchoRaw: cfg.Listen.EchoRaw,
	}, queue, bell, table, metrics, logger)
	if err != nil {
		return err
	}

	eng := engine.New(cfg, engine.Deps{
		Queue:   queue,
		Bell:    bell,
		Peers:   table,
		Ingest:  listener.Stats,
		Records: records,
		Archive: archived,
		Spans:   spans,
		Filter:  filter,
		Metrics: metrics,
		Sinks:   sinkStats(csv, archive),
		Logger:  logger,
	})

	var server *api.Server
	if cfg.HTTPEnabled() {
		server = api.New(eng, logger)
		server.Start(cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := listener.Start(ctx); err != nil {
		return err
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	// Stop the transport first so the engine's final drain is bounded.
	if err := listener.Stop(); err != nil {
		logger.Warn("closing listener failed", zap.Error(err))
	}
	stopEngine()
	if err := <-engineDone; err != nil {
		logger.Warn("engine exited with error", zap.Error(err))
	}

	// Flush exporters only after the engine has drained into them.
	if csv != nil {
		if err := csv.Close(); err != nil {
			logger.Warn("closing csv export failed", zap.Error(err))
		}
	}
	if archive != nil {
		if err := archive.Close(); err != nil {
			logger.Warn("closing archive failed", zap.Error(err))
		}
	}
	if spans != nil {
		_ = spans.Close()
	}

	if server != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", zap.Error(err))
		}
	}

	return nil
}
