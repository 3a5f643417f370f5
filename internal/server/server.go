// Package server wires the goferry HTTP API onto a chi router.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/goferry/internal/errors"
	"github.com/3leaps/goferry/internal/observability"
	"github.com/3leaps/goferry/internal/server/handlers"
	"github.com/3leaps/goferry/internal/server/middleware"
	"github.com/3leaps/goferry/pkg/transfer"
)

// Timeouts bounds the HTTP server. Zero fields use the defaults.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Read == 0 {
		t.Read = 30 * time.Second
	}
	if t.Write == 0 {
		t.Write = 10 * time.Minute
	}
	if t.Idle == 0 {
		t.Idle = 120 * time.Second
	}
	if t.Shutdown == 0 {
		t.Shutdown = 10 * time.Second
	}
	return t
}

// Option configures a Server.
type Option func(*Server)

// WithEngine sets the transfer engine. The default is a transfer.Verifier
// logging to ServerLogger.
func WithEngine(engine handlers.Engine) Option {
	return func(s *Server) { s.engine = engine }
}

// WithTransferConfig sets the transfer endpoint's policy default and
// destination root.
func WithTransferConfig(cfg handlers.TransferHandlerConfig) Option {
	return func(s *Server) { s.transferCfg = cfg }
}

// WithTimeouts sets the HTTP server timeouts.
func WithTimeouts(t Timeouts) Option {
	return func(s *Server) { s.timeouts = t }
}

// Server is the goferry HTTP server.
type Server struct {
	host        string
	port        int
	router      chi.Router
	engine      handlers.Engine
	transferCfg handlers.TransferHandlerConfig
	timeouts    Timeouts
}

// New creates a server listening on host:port. Port 0 picks a free port at
// Start.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{host: host, port: port}
	for _, opt := range opts {
		opt(s)
	}
	s.timeouts = s.timeouts.withDefaults()
	if s.transferCfg.Logger == nil {
		s.transferCfg.Logger = observability.ServerLogger
	}
	if s.engine == nil {
		s.engine = transfer.New(transfer.Options{Logger: observability.ServerLogger})
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.NotFound(apperrors.NotFound)
	r.MethodNotAllowed(apperrors.MethodNotAllowed)

	r.Get("/health", handlers.HealthHandler)
	r.Get("/health/live", handlers.LivenessHandler)
	r.Get("/health/ready", handlers.ReadinessHandler)
	r.Get("/health/startup", handlers.StartupHandler)
	r.Get("/version", handlers.VersionHandler)

	th := handlers.NewTransferHandler(s.engine, s.transferCfg)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/transfers", th.Transfer)
		r.Get("/size", th.Size)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.timeouts.Read,
		ReadHeaderTimeout: s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
		IdleTimeout:       s.timeouts.Idle,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		observability.ServerLogger.Info("server listening", zap.String("addr", ln.Addr().String()))
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

	observability.ServerLogger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
