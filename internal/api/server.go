// Package api is the HTTP boundary: plan generation, intent execution,
// upload registration, session close, health and metrics. Everything that
// crosses it is validated before the core touches it.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voxpilot/voxpilot/api/schemas"
	"github.com/voxpilot/voxpilot/internal/config"
	"github.com/voxpilot/voxpilot/internal/session"
	"github.com/voxpilot/voxpilot/internal/uploads"
)

// Executor runs already-validated intents inside a session. The production
// implementation builds an engine around the session's page; handler tests
// stub it.
type Executor interface {
	Execute(ctx context.Context, sess *session.Session, intents []schemas.Intent) ([]schemas.StepResult, error)
}

// Planner produces a validated plan from a transcript.
type Planner interface {
	PlanFromTranscript(ctx context.Context, transcript string, sessionContext map[string]any) (*schemas.Plan, error)
}

// Server wires the chi router over the core components.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	sessions   *session.Manager
	uploads    *uploads.Store
	executor   Executor
	planner    Planner
	metrics    *metrics
	maxUpload  int64
	logger     *zap.Logger
}

// Options collect the server's collaborators. Planner may be nil when no
// API key is configured; the plan endpoint then reports unavailability.
type Options struct {
	Config   config.ServerConfig
	Sessions *session.Manager
	Uploads  *uploads.Store
	Executor Executor
	Planner  Planner
	Logger   *zap.Logger
}

func NewServer(opts Options) *Server {
	maxUpload := int64(opts.Config.MaxUploadMB)
	if maxUpload <= 0 {
		maxUpload = 32
	}
	s := &Server{
		sessions:  opts.Sessions,
		uploads:   opts.Uploads,
		executor:  opts.Executor,
		planner:   opts.Planner,
		metrics:   newMetrics(),
		maxUpload: maxUpload << 20,
		logger:    opts.Logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Post("/execute", s.handleExecute)
		r.Post("/uploads", s.handleUpload)
		r.Post("/sessions/close", s.handleSessionClose)
		r.Post("/plan", s.handlePlan)
	})
	s.router = r

	s.httpServer = &http.Server{
		Addr:              opts.Config.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is the
// normal shutdown signal, not a failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening.", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then tears down every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Draining HTTP server.")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.sessions.Shutdown(ctx)
}
