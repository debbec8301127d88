// Package server exposes the dashboard service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qontrol/qontrol/internal/dashboard"
	"github.com/qontrol/qontrol/internal/logging"
	"github.com/qontrol/qontrol/internal/redistrace"
)

const (
	defaultWSInterval      = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// CORSOrigin is sent as Access-Control-Allow-Origin; empty disables CORS headers.
	CORSOrigin      string
	WSInterval      time.Duration
	ShutdownTimeout time.Duration
	// Trace enables GET /api/debug/redis when set.
	Trace *redistrace.Recorder
	Now   func() time.Time
}

// Server is the HTTP front of a dashboard.Service.
type Server struct {
	svc             *dashboard.Service
	logger          *slog.Logger
	metrics         *Metrics
	feed            *QueueFeed
	trace           *redistrace.Recorder
	corsOrigin      string
	shutdownTimeout time.Duration
	now             func() time.Time
	handler         http.Handler
}

// New builds the server and its routes.
func New(svc *dashboard.Service, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	interval := opts.WSInterval
	if interval <= 0 {
		interval = defaultWSInterval
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		svc:             svc,
		logger:          logger.With(slog.String("component", "http")),
		metrics:         NewMetrics(),
		trace:           opts.Trace,
		corsOrigin:      opts.CORSOrigin,
		shutdownTimeout: shutdownTimeout,
		now:             now,
	}
	s.feed = NewQueueFeed(svc.Registry, s.metrics, logger, interval, opts.CORSOrigin, now)
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		s.feed.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) timestamp() time.Time {
	return s.now().UTC()
}
