package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/robofleet/internal/fleet/cache"
	"github.com/autopeer-io/robofleet/pkg/log"
	"github.com/autopeer-io/robofleet/pkg/options"
)

const shutdownTimeout = 5 * time.Second

// ReadinessCheck returns nil when a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// RobotView is the read side of the telemetry cache.
type RobotView interface {
	Snapshot(robotID string) cache.Snapshot
	IsOnline(robotID string) bool
}

// Config wires the handlers of the ops server.
type Config struct {
	Options  *options.HttpOptions
	Gatherer prometheus.Gatherer
	Robots   RobotView
	// Checks are run by /readyz, keyed by name.
	Checks map[string]ReadinessCheck
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	checks  map[string]ReadinessCheck
	robots  RobotView
}

type robotResponse struct {
	cache.Snapshot
	Alive bool `json:"alive"`
}

func NewServer(cfg Config) *Server {
	s := &Server{
		options: cfg.Options,
		checks:  cfg.Checks,
		robots:  cfg.Robots,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if cfg.Robots != nil {
		r.HandleFunc("/debug/robots/{robotId}", s.robot).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         cfg.Options.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Options.Timeout,
		WriteTimeout: cfg.Options.Timeout,
	}
	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	network := s.options.Network
	if network == "" {
		network = "tcp"
	}
	ln, err := net.Listen(network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) robot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["robotId"]
	writeJSON(w, http.StatusOK, robotResponse{
		Snapshot: s.robots.Snapshot(id),
		Alive:    s.robots.IsOnline(id),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}
