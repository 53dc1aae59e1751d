// Package diag exposes a read-only local HTTP surface for gateway status
// and metrics: no writes, no auth, meant for a LAN-local dashboard or
// curl during bring-up. Grounded on the teacher's internal/api/server.go
// chi+cors wiring, stripped of everything that server needs for a
// multi-tenant write API (JWT auth middleware, request validation,
// static web-UI mount) that has no counterpart on a read-only device
// endpoint.
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/au915gw/gateway/internal/gwtypes"
)

// StatusSource is the narrow read surface the status endpoint needs.
// *gwcore.Core satisfies it.
type StatusSource interface {
	Stats() gwtypes.GatewayStats
	ForwarderStatus() gwtypes.ForwarderStatus
	RunID() string
}

// Server serves GET /status, GET /healthz and GET /metrics on a local
// address. It never mutates gateway state.
type Server struct {
	log    zerolog.Logger
	source StatusSource
	router chi.Router
	srv    *http.Server
}

// New constructs a diag Server bound to addr (e.g. "127.0.0.1:8080").
func New(addr string, source StatusSource, log zerolog.Logger) *Server {
	s := &Server{log: log, source: source, router: chi.NewRouter()}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(5 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/metrics", s.handleMetrics)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	RunID     string                  `json:"run_id"`
	Forwarder gwtypes.ForwarderStatus `json:"forwarder"`
	Stats     gwtypes.GatewayStats    `json:"stats"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		RunID:     s.source.RunID(),
		Forwarder: s.source.ForwarderStatus(),
		Stats:     s.source.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// handleMetrics reports the same counters flattened for quick scraping by
// a textual metrics collector; not Prometheus exposition format, just
// "key value" lines, since a full metrics exporter is outside this
// module's scope.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats := s.source.Stats()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeMetric := func(name string, v uint64) {
		_, _ = w.Write([]byte(name))
		_, _ = w.Write([]byte(" "))
		_, _ = w.Write([]byte(strconv.FormatUint(v, 10)))
		_, _ = w.Write([]byte("\n"))
	}
	writeMetric("gw_rx_total", stats.RxTotal)
	writeMetric("gw_rx_ok", stats.RxOk)
	writeMetric("gw_rx_bad", stats.RxBad)
	writeMetric("gw_rx_forwarded", stats.RxForwarded)
	writeMetric("gw_rx_dropped", stats.RxDropped)
	writeMetric("gw_tx_total", stats.TxTotal)
	writeMetric("gw_tx_ok", stats.TxOk)
	writeMetric("gw_tx_fail", stats.TxFail)
	writeMetric("gw_tx_collision", stats.TxCollision)
	writeMetric("gw_tx_dropped", stats.TxDropped)
	writeMetric("gw_uptime_seconds", stats.UptimeSeconds)
}

// Run starts ListenAndServe and blocks until ctx is cancelled, then shuts
// the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
