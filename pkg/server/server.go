// Package server provides the control API for deployment proxies.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"mercator-hq/tracker/pkg/config"
	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/server/middleware"
	"mercator-hq/tracker/pkg/telemetry/health"
	"mercator-hq/tracker/pkg/tracking"
)

// ProxyRegistry manages the running deployment proxies. *proxy.Registry
// implements it.
type ProxyRegistry interface {
	Register(ctx context.Context, req proxy.RegisterRequest) (*proxy.Entry, error)
	Lookup(key proxy.Key) (*proxy.Entry, error)
	List() []*proxy.Entry
	Unregister(ctx context.Context, key proxy.Key) error
}

// Options carries the server's collaborators.
type Options struct {
	Registry ProxyRegistry
	Control  *tracking.ControlPlane

	// Health serves /health and /ready. Nil disables both.
	Health *health.Checker

	// Metrics serves MetricsPath. Nil disables it.
	Metrics     http.Handler
	MetricsPath string

	Version   string
	Commit    string
	BuildTime string
}

// Server is the control API server.
type Server struct {
	config       *config.ServerConfig
	opts         Options
	cors         *middleware.CORSConfig
	upgrader     websocket.Upgrader
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// NewServer creates a control API server.
func NewServer(cfg *config.ServerConfig, opts Options) *Server {
	s := &Server{
		config:       cfg,
		opts:         opts,
		shutdownChan: make(chan struct{}),
		logger:       slog.Default().With("component", "server"),
	}
	s.cors = s.convertCORSConfig()
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Listen binds the listen address. Start calls it when the server has no
// listener yet; calling it first lets the caller learn the bound address.
func (s *Server) Listen() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr(), nil
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = ln
	return ln.Addr(), nil
}

// Start serves the control API and blocks until ctx is cancelled, Stop is
// called or the server fails.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	ln := s.listener
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting control server", "address", ln.Addr().String())

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown gracefully shuts down the server. Hijacked WebSocket connections
// are not tracked by http.Server; they end when their peers go away or the
// process exits.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("control server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// setupRoutes configures HTTP routes and middleware chain.
func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()

	if s.opts.Health != nil {
		router.HandleFunc("/health", s.opts.Health.LivenessHandler()).Methods(http.MethodGet)
		router.HandleFunc("/ready", s.opts.Health.ReadinessHandler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/version", health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime)).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, s.opts.Metrics).Methods(http.MethodGet)
	}

	router.HandleFunc("/v1/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := router.PathPrefix("/v1/proxies").Subrouter()
	api.Use(middleware.TimeoutMiddleware(s.config.WriteTimeout))
	api.HandleFunc("", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/{project}/{deployment}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{project}/{deployment}", s.handleUnregister).Methods(http.MethodDelete)
	api.HandleFunc("/{project}/{deployment}/tracking", s.handleEnable).Methods(http.MethodPost)
	api.HandleFunc("/{project}/{deployment}/tracking", s.handleDisable).Methods(http.MethodDelete)
	api.HandleFunc("/{project}/{deployment}/logs", s.handleGetLogs).Methods(http.MethodGet)
	api.HandleFunc("/{project}/{deployment}/logs", s.handleClearLogs).Methods(http.MethodDelete)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Apply middleware chain
	var handler http.Handler = router

	// CORS middleware
	handler = middleware.CORSMiddleware(s.cors)(handler)

	// Request ID middleware
	handler = middleware.RequestIDMiddleware(handler)

	// Logging middleware
	handler = middleware.LoggingMiddleware(handler)

	// Recovery middleware (outermost)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// checkOrigin admits same-host WebSocket clients and, with CORS enabled,
// the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.cors.Enabled && s.cors.AllowsOrigin(origin) {
		return true
	}
	return sameHost(origin, r.Host)
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	return &middleware.CORSConfig{
		Enabled:          config.Enabled(s.config.CORS.Enabled, true),
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   s.config.CORS.AllowedMethods,
		AllowedHeaders:   s.config.CORS.AllowedHeaders,
		ExposedHeaders:   s.config.CORS.ExposedHeaders,
		MaxAge:           s.config.CORS.MaxAge,
		AllowCredentials: s.config.CORS.AllowCredentials,
	}
}
