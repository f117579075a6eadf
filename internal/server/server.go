// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/cors-demo/internal/config"
	"github.com/vyrodovalexey/cors-demo/internal/handler"
	"github.com/vyrodovalexey/cors-demo/internal/middleware"
	"github.com/vyrodovalexey/cors-demo/internal/store"
)

// PathMetrics is where Prometheus metrics are exposed.
const PathMetrics = "/metrics"

// fallbackMethods are advertised on 404 and 405 responses, which belong to
// no registered path.
var fallbackMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// Server runs the API server and, when a probe port is configured, a
// separate probe server for health, readiness and metrics.
type Server struct {
	httpServer  *http.Server
	probeServer *http.Server
	router      *mux.Router
	probeRouter *mux.Router
	config      *config.Config
	logger      *zap.Logger
	cors        *middleware.CORSPolicy
	events      *handler.EventHub
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, itemStore store.Store) *Server {
	s := &Server{
		router: mux.NewRouter(),
		config: cfg,
		logger: logger,
		cors:   middleware.NewCORSPolicy(middleware.CORSConfig{AllowHeaders: cfg.CORSAllowHeaders}),
	}

	s.setupMiddleware()
	s.setupRoutes(itemStore)
	s.setupHTTPServers()

	return s
}

// baseMiddleware is applied to every request, including those mux answers
// with its NotFound and MethodNotAllowed handlers.
func (s *Server) baseMiddleware() []middleware.Middleware {
	chain := []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
	}
	if s.config.MetricsEnabled {
		chain = append(chain, middleware.Metrics())
	}
	return append(chain,
		middleware.Logging(s.logger),
		middleware.DebugHeaders(s.logger),
	)
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	base := s.baseMiddleware()

	// Apply middleware in order (first applied = outermost)
	for _, mw := range base {
		s.router.Use(mux.MiddlewareFunc(mw))
	}

	// mux skips router middleware when no route matches.
	wrap := middleware.Chain(base...)
	s.router.NotFoundHandler = wrap(s.cors.Handler(handler.NotFound(s.logger), fallbackMethods...))
	s.router.MethodNotAllowedHandler = wrap(s.cors.Handler(handler.MethodNotAllowed(s.logger), fallbackMethods...))
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(itemStore store.Store) {
	var publisher handler.EventPublisher
	if s.config.WebSocketEnabled {
		s.events = handler.NewEventHub(s.logger)
		s.events.RegisterRoutes(s.router)
		publisher = s.events
	}

	restHandler := handler.NewRESTHandler(itemStore, s.cors, publisher, s.logger)
	restHandler.RegisterRoutes(s.router)
	restHandler.RefreshItemCount(context.Background())

	handler.NewIndexHandler(s.cors, s.logger).RegisterRoutes(s.router)
	handler.NewDiagnosticsHandler(s.cors, s.logger).RegisterRoutes(s.router)

	probes := s.router
	if s.config.ProbePort != 0 {
		s.probeRouter = mux.NewRouter()
		s.probeRouter.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
		s.probeRouter.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
		probes = s.probeRouter
	}

	handler.NewHealthHandler(s.logger).RegisterRoutes(probes)
	if s.config.MetricsEnabled {
		probes.Handle(PathMetrics, promhttp.Handler()).Methods(http.MethodGet)
	}
}

// setupHTTPServers configures the API and probe HTTP servers.
func (s *Server) setupHTTPServers() {
	s.httpServer = newHTTPServer(s.config.Address(), s.router)
	if s.probeRouter != nil {
		s.probeServer = newHTTPServer(s.config.ProbeAddress(), s.probeRouter)
	}
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Run listens on the configured ports and serves until ctx is done or a
// server fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	apiListener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	var probeListener net.Listener
	if s.probeServer != nil {
		probeListener, err = net.Listen("tcp", s.probeServer.Addr)
		if err != nil {
			_ = apiListener.Close()
			return fmt.Errorf("listening on %s: %w", s.probeServer.Addr, err)
		}
	}

	return s.Serve(ctx, apiListener, probeListener)
}

// Serve serves the API on apiListener and the probes on probeListener.
// probeListener is ignored when probes share the API router.
func (s *Server) Serve(ctx context.Context, apiListener, probeListener net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	s.logger.Info("starting server",
		zap.String("address", apiListener.Addr().String()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("websocket_enabled", s.config.WebSocketEnabled),
	)
	g.Go(func() error {
		return serve(s.httpServer, apiListener)
	})

	if s.probeServer != nil && probeListener != nil {
		s.logger.Info("starting probe server",
			zap.String("address", probeListener.Addr().String()),
		)
		g.Go(func() error {
			return serve(s.probeServer, probeListener)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", ln.Addr(), err)
	}
	return nil
}

// Shutdown gracefully shuts down both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.events != nil {
		s.events.CloseAllConnections()
	}

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if s.probeServer != nil {
		if err := s.probeServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("probe server shutdown: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// EventClientCount returns the number of connected event feed clients.
func (s *Server) EventClientCount() int {
	if s.events == nil {
		return 0
	}
	return s.events.ClientCount()
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ProbeRouter returns the probe router, or nil when probes are served by
// Router.
func (s *Server) ProbeRouter() *mux.Router {
	return s.probeRouter
}
