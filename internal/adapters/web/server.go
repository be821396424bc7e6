// Package web serves a small read-only JSON status API over HTTP.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/corey/linecheck/internal/logging"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// HealthResult is the /api/health payload.
type HealthResult struct {
	Status   string `json:"status"`
	Strategy string `json:"strategy"`
	Target   string `json:"target"`
	Lines    int    `json:"lines,omitempty"` // distinct lines held by snapshot strategies
	TLS      bool   `json:"tls"`
	Uptime   string `json:"uptime"`
}

// StatsResult is the /api/stats payload.
type StatsResult struct {
	Accepted  uint64            `json:"accepted"`
	Active    int               `json:"active"`
	Handled   uint64            `json:"handled"`
	Responses map[string]uint64 `json:"responses"`
	AvgMicros int64             `json:"avg_us"`
	P50Micros int64             `json:"p50_us"`
	MaxMicros int64             `json:"max_us"`
	Reloads   uint64            `json:"reloads"`
	LastLoad  string            `json:"last_load,omitempty"`
}

// StatusSource supplies the data behind the status endpoints.
type StatusSource interface {
	Health() HealthResult
	Stats() StatsResult
}

// Server serves the status API.
type Server struct {
	source   StatusSource
	log      *slog.Logger
	listener net.Listener
	httpSrv  *http.Server
	stopOnce sync.Once
}

// NewServer creates a status server backed by source.
func NewServer(source StatusSource, logger *slog.Logger) *Server {
	return &Server{source: source, log: logging.OrDiscard(logger)}
}

// Start begins listening on addr. Port 0 picks a free port.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server stopped", "err", err)
		}
	}()
	s.log.Info("status endpoint listening", "addr", ln.Addr().String())
	return nil
}

// Handler returns the status routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	return mux
}

// Stop gracefully shuts down the HTTP server. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.httpSrv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.log.Warn("status server shutdown", "err", err)
		}
	})
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Health())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.source.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
