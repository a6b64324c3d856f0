// Package server exposes the gate and the analysis service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/sidebar-gate/internal/adapters/events/hub"
	"github.com/tjfontaine/sidebar-gate/internal/analysis"
	"github.com/tjfontaine/sidebar-gate/internal/gate"
)

// Deps are the components the HTTP handlers call.
type Deps struct {
	Gate *gate.Gate
	// Events receives selection events forwarded by the sidebar.
	Events *hub.Hub
	// Integration is attached to every request's host context.
	Integration any
	// Analysis is optional; without it /v1/analyze is not mounted.
	Analysis *analysis.Service
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	deps   Deps
	http   *http.Server
}

func New(port int, timeout time.Duration, logger *slog.Logger, deps Deps) (*Server, error) {
	if deps.Gate == nil {
		return nil, fmt.Errorf("gate required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(TimeoutMiddleware(timeout))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "sidebar-gate")
	})

	s := &Server{
		Router: r,
		Port:   port,
		logger: logger,
		deps:   deps,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Router.Get("/healthz", s.handleHealth)

	s.Router.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/audit", s.handleAudit)
		r.Get("/presets", s.handlePresets)
		r.Post("/events/selection", s.handleSelectionEvent)

		r.Group(func(r chi.Router) {
			r.Use(HostProbeMiddleware(s.deps.Integration))
			r.Use(RateLimitHeadersMiddleware(s.deps.Gate))
			r.Post("/access", s.handleAccess)
			if s.deps.Analysis != nil {
				r.Post("/analyze", s.handleAnalyze)
			}
		})
	})
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
