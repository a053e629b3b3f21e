// Package server exposes the scan pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scansafe/internal/auth"
	"github.com/sells-group/scansafe/internal/scanner"
	"github.com/sells-group/scansafe/internal/store"
)

// Config holds HTTP server settings.
type Config struct {
	Port            int
	AllowedOrigins  []string
	RateLimitMax    int
	RateLimitWindow time.Duration
	ShutdownTimeout time.Duration
}

// Server wires the router and its dependencies.
type Server struct {
	cfg      Config
	scanner  *scanner.Scanner
	store    store.Store
	verifier auth.Verifier
	logger   *zap.Logger
	router   chi.Router
}

// New builds a Server with routes and middleware configured.
func New(cfg Config, sc *scanner.Scanner, st store.Store, verifier auth.Verifier) *Server {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 40
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 15 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if verifier == nil {
		verifier = auth.AnonymousVerifier{}
	}

	s := &Server{
		cfg:      cfg,
		scanner:  sc,
		store:    st,
		verifier: verifier,
		logger:   zap.L().Named("server"),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(metricsMiddleware())
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/products", func(r chi.Router) {
		r.With(newIPRateLimiter(s.cfg.RateLimitMax, s.cfg.RateLimitWindow).middleware).
			Post("/scan", s.handleScan)
		r.Get("/recent-scans", s.handleRecentScans)
	})

	return r
}

// Handler returns the configured router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
	case err := <-errCh:
		if err != nil {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}
