package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Status is the controller summary served on /healthz.
type Status struct {
	Monitoring    bool
	LastCommandAt time.Time
}

// StatusFunc reports the current controller summary.
type StatusFunc func() Status

// Server exposes /metrics and /healthz. It is read-only and meant to be
// bound to loopback.
type Server struct {
	logger  *zap.Logger
	addr    string
	metrics *Metrics
	status  StatusFunc
	started time.Time
}

// NewServer creates a server for addr. status may be nil.
func NewServer(logger *zap.Logger, addr string, metrics *Metrics, status StatusFunc) *Server {
	if status == nil {
		status = func() Status { return Status{} }
	}
	return &Server{
		logger:  logger.Named("metrics"),
		addr:    addr,
		metrics: metrics,
		status:  status,
		started: time.Now(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Serving metrics", zap.String("address", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}
	s.logger.Info("Metrics server stopped")
	return nil
}

type healthResponse struct {
	Status      string `json:"status"`
	Monitoring  bool   `json:"monitoring"`
	Uptime      string `json:"uptime"`
	LastCommand string `json:"last_command,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.status()
	resp := healthResponse{
		Status:     "ok",
		Monitoring: st.Monitoring,
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	}
	if !st.LastCommandAt.IsZero() {
		resp.LastCommand = humanize.Time(st.LastCommandAt)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("Writing health response failed", zap.Error(err))
	}
}
