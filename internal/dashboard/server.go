// internal/dashboard/server.go
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/pipeline"
	"github.com/signalnine/marvinous/internal/protocol"
)

const shutdownTimeout = 10 * time.Second

// RunLister reads run history
type RunLister interface {
	Recent(limit int) ([]protocol.RunRecord, error)
	Failures(limit int) ([]protocol.RunRecord, error)
	OutcomeCounts() (map[string]int, error)
}

// Server is the web dashboard. It shares the App, and therefore the
// collection guard, with the scheduler.
type Server struct {
	cfg     *config.Config
	app     *pipeline.App
	runs    RunLister
	limiter *rate.Limiter
	version string
	server  *http.Server
}

// NewServer builds the dashboard. runs may be nil when history is disabled.
func NewServer(cfg *config.Config, app *pipeline.App, runs RunLister, version string) *Server {
	limit := rate.Inf
	if cfg.Web.RateLimit > 0 {
		limit = rate.Limit(cfg.Web.RateLimit)
	}
	burst := cfg.Web.RateBurst
	if burst < 1 {
		burst = 1
	}

	s := &Server{
		cfg:     cfg,
		app:     app,
		runs:    runs,
		limiter: rate.NewLimiter(limit, burst),
		version: version,
	}
	s.server = &http.Server{
		Addr:              cfg.WebAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the dashboard's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reports", s.listReports)
	mux.HandleFunc("GET /api/reports/{filename}", s.getReport)
	mux.HandleFunc("POST /api/collect", s.triggerCollect)
	mux.HandleFunc("GET /api/status", s.status)
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	if dir := s.cfg.Web.StaticDir; dir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	}
	return instrument(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("dashboard listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("dashboard shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
