package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/tokengate/auth"
	"github.com/jonwraymond/tokengate/governor"
	"github.com/jonwraymond/tokengate/health"
	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/resilience"
)

// Governor is the part of *governor.Client the server uses.
type Governor interface {
	Status() resilience.BucketStatus
	Stats() governor.Stats
	Reconcile(h resilience.BudgetHint)
	LastAuthFailure() time.Time
}

// Config configures a Server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Authenticators guard the operator endpoints. None means those
	// endpoints reject every request.
	Authenticators []auth.Authenticator

	// Health runs the readiness and detailed health checks.
	// Default: an aggregator with only the budget check
	Health *health.Aggregator

	// Registerer receives the HTTP request metrics.
	// Default: prometheus.DefaultRegisterer
	Registerer prometheus.Registerer

	// Gatherer is served on /metrics.
	// Default: prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer

	Logger observe.Logger
}

// Server is the tokengate HTTP server.
type Server struct {
	config  Config
	gov     Governor
	logger  observe.Logger
	metrics *httpMetrics
	router  chi.Router
	http    *http.Server
	now     func() time.Time
}

// New creates a server for gov.
func New(gov Governor, config Config) (*Server, error) {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Health == nil {
		config.Health = health.NewAggregator()
		config.Health.Register(health.BudgetChecker(gov, health.BudgetCheckerConfig{}))
	}

	m, err := newHTTPMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  config,
		gov:     gov,
		logger:  config.Logger,
		metrics: m,
		now:     time.Now,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observeRequests)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", health.ReadinessHandler(s.config.Health))
	r.Get("/health", health.DetailedHandler(s.config.Health))
	r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tokens", s.handleTokens)
		r.Get("/stats", s.handleStats)
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.logger, s.config.Authenticators...))
			r.Use(auth.RequireRole(auth.RoleOperator))
			r.Post("/tokens/reconcile", s.handleReconcile)
		})
	})
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info(ctx, "http server listening", observe.F("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	s.logger.Info(shutdownCtx, "http server shutting down")
	err := s.http.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	return err
}
