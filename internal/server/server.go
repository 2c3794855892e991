// Package server exposes the agent runtime over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robusta-dev/holmes/internal/agent"
	"github.com/robusta-dev/holmes/internal/config"
	"github.com/robusta-dev/holmes/internal/observability"
)

// Server serves the chat and investigation API.
type Server struct {
	runtime *agent.Runtime
	config  config.ServerConfig
	logger  *slog.Logger
	metrics *observability.Metrics

	httpServer *http.Server
	listener   net.Listener
}

// New creates the HTTP server around an agent runtime.
func New(runtime *agent.Runtime, cfg config.ServerConfig, logger *slog.Logger, metrics *observability.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runtime: runtime,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Start begins listening and serving. It returns once the listener is
// bound; serving continues in the background until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("POST /api/chat", s.instrument("/api/chat", s.handleChat))
	mux.Handle("POST /api/investigate", s.instrument("/api/investigate", s.handleInvestigate))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Addr returns the bound listen address, useful when Port was 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	return nil
}

// instrument wraps a handler with request metrics and access logging.
func (s *Server) instrument(path string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		duration := time.Since(start)

		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(r.Method, path, strconv.Itoa(rec.status), duration)
		}
		s.logger.Info("http request",
			"method", r.Method,
			"path", path,
			"status", rec.status,
			"duration", duration,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
