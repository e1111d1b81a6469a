// Package api serves the read-only diagnostic surface over HTTP.
//
// Every endpoint renders some slice of the engine's last published
// snapshot, so handlers never contend with the consumer loop.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Duck-YP/ESP32-UWB-program/internal/engine"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ingest"
	"github.com/Duck-YP/ESP32-UWB-program/internal/liveness"
	"github.com/Duck-YP/ESP32-UWB-program/internal/pairing"
	"github.com/Duck-YP/ESP32-UWB-program/internal/peers"
	"github.com/Duck-YP/ESP32-UWB-program/internal/ratestats"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Server exposes engine snapshots to HTTP clients.
type Server struct {
	engine *engine.Engine
	logger *zap.Logger
	http   *http.Server
}

// New creates a Server. Call Start to begin serving.
func New(eng *engine.Engine, logger *zap.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.snapshot)
		r.Get("/rates", s.rates)
		r.Get("/replay", s.replay)
		r.Get("/status", s.status)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "endpoint not found"})
	})

	return r
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
	s.logger.Info("http api listening", zap.String("addr", addr))
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

type ratesResponse struct {
	RunID string             `json:"run_id"`
	Now   time.Time          `json:"now"`
	Rates []ratestats.Bucket `json:"rates"`
}

type replayResponse struct {
	RunID  string             `json:"run_id"`
	Now    time.Time          `json:"now"`
	Events []engine.EventView `json:"events"`
	Links  []engine.LinkView  `json:"links"`
}

type statusResponse struct {
	RunID    string                `json:"run_id"`
	Started  time.Time             `json:"started"`
	Now      time.Time             `json:"now"`
	Ingest   ingest.Stats          `json:"ingest"`
	Engine   engine.Counters       `json:"engine"`
	Pairing  pairing.Stats         `json:"pairing"`
	Pending  engine.PendingView    `json:"pending"`
	LastLink *engine.LinkView      `json:"last_link,omitempty"`
	Latency  engine.LatencySummary `json:"latency"`
	Cadence  map[string]float64    `json:"tx_cadence_ms"`
	Liveness []liveness.RoleStatus `json:"liveness"`
	Peers    []peers.Info          `json:"peers"`
	Export   engine.SinkStats      `json:"export"`
}

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		RunID:  s.engine.Snapshot().RunID,
	})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *Server) rates(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	respondJSON(w, http.StatusOK, ratesResponse{
		RunID: snap.RunID,
		Now:   snap.Now,
		Rates: snap.Rates,
	})
}

// replay returns the windowed events and links, optionally restricted to
// those newer than the since_us query parameter (microseconds since the
// Unix epoch). Pollers pass the host_ts of the last event they saw.
func (s *Server) replay(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	events, links := snap.Events, snap.Links

	if raw := r.URL.Query().Get("since_us"); raw != "" {
		usec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "since_us must be an integer microsecond timestamp"})
			return
		}
		since := time.UnixMicro(usec)
		events = eventsSince(events, since)
		links = linksSince(links, since)
	}

	respondJSON(w, http.StatusOK, replayResponse{
		RunID:  snap.RunID,
		Now:    snap.Now,
		Events: events,
		Links:  links,
	})
}

// eventsSince relies on the snapshot slices being ordered oldest to
// newest; the suffix after the cut point is returned without copying.
func eventsSince(events []engine.EventView, since time.Time) []engine.EventView {
	for i, ev := range events {
		if ev.HostTS.After(since) {
			return events[i:]
		}
	}
	return nil
}

func linksSince(links []engine.LinkView, since time.Time) []engine.LinkView {
	for i, link := range links {
		if link.RXHostTS.After(since) {
			return links[i:]
		}
	}
	return nil
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.Snapshot()
	respondJSON(w, http.StatusOK, statusResponse{
		RunID:    snap.RunID,
		Started:  snap.Started,
		Now:      snap.Now,
		Ingest:   snap.Ingest,
		Engine:   snap.Engine,
		Pairing:  snap.Pairing,
		Pending:  snap.Pending,
		LastLink: snap.LastLink,
		Latency:  snap.Latency,
		Cadence:  snap.Cadence,
		Liveness: snap.Liveness,
		Peers:    snap.Peers,
		Export:   snap.Export,
	})
}
