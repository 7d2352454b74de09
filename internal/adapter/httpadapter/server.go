package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hdd-momentum-service/internal/domain"
	"github.com/couchcryptid/hdd-momentum-service/internal/pipeline"
)

// Engine is the refresh surface served over HTTP. *pipeline.Engine implements it.
type Engine interface {
	sharedobs.ReadinessChecker
	Refresh(ctx context.Context, opts pipeline.RefreshOptions) (*pipeline.Session, error)
	Latest() *pipeline.Session
	Snapshot(ctx context.Context, key domain.Key) (*pipeline.StoredSnapshot, bool, error)
	Classify(value float64, indicator domain.Indicator) (domain.Sentiment, error)
}

// Server exposes health, readiness, metrics, and the refresh API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics, and the
// /api/v1 routes.
func NewServer(addr string, engine Engine, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 2 * time.Minute, // a refresh waits on every forecast fetch
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(engine))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	h := &handlers{engine: engine, logger: logger}
	r.Route("/api/v1", h.RegisterRoutes)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
