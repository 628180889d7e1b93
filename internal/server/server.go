// Package server exposes a running app over HTTP: state inspection,
// dispatch, model injection and removal, metrics and a state stream.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/statekit/modules/actionlog"
	"github.com/flemzord/statekit/pkg/app"
)

// DefaultDispatchTimeout bounds how long POST /dispatch waits for an
// effect to settle.
const DefaultDispatchTimeout = 30 * time.Second

// Config configures the server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	DispatchTimeout time.Duration

	// Token protects every mutating route when non-empty.
	Token string
}

// Deps are the collaborators served over HTTP. Only App is required.
type Deps struct {
	App *app.App

	// Gatherer backs GET /metrics. Nil leaves the route unmounted.
	Gatherer prometheus.Gatherer

	// Journal backs GET /actions. Nil leaves the route unmounted.
	Journal *actionlog.Journal

	// Reload backs POST /reload. Nil leaves the route unmounted.
	Reload func(ctx context.Context) error

	Logger *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	cfg       Config
	deps      Deps
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a server.
func New(cfg Config, deps Deps) *Server {
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultDispatchTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With("component", "server"),
		startedAt: time.Now(),
	}
}

// Handler returns the router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth())
	r.Get("/state", s.handleState())
	r.Get("/models", s.handleListModels())
	r.Get("/catalog", s.handleCatalog())
	r.Get("/ws", s.handleStream())
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
	if s.deps.Journal != nil {
		r.Get("/actions", s.handleActions())
	}

	r.Group(func(r chi.Router) {
		if s.cfg.Token != "" {
			r.Use(bearerAuth(s.cfg.Token))
		}
		r.Post("/dispatch", s.handleDispatch())
		r.Post("/models/{namespace}", s.handleInjectModel())
		r.Delete("/models/{namespace}", s.handleRemoveModel())
		if s.deps.Reload != nil {
			r.Post("/reload", s.handleReload())
		}
	})

	return r
}

// Run listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return errors.New("server: listen failed: " + err.Error())
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
