// Package server implements the HTTP API for submitting incidents and
// inspecting their traces, facts and incident history.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/internal/observability"
)

// Service is what the handlers need from the application.
type Service interface {
	Run(ctx context.Context, input string) (model.Run, error)
	Incidents(ctx context.Context) ([]model.Incident, error)
	Facts(ctx context.Context) ([]model.Fact, error)
	Summary(traceID string) observability.Summary
	Spans(traceID string) []model.Span
}

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Service Service
	Logger  *slog.Logger

	// HTTP server settings.
	Addr                string
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration // Must cover a full run: five stages plus retries.
	Version             string
	MaxRequestBodyBytes int64
	OpenAPISpec         []byte // Optional; /openapi.yaml answers 404 when empty.
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = 1 << 20
	}
	h := NewHandlers(HandlersDeps{
		Service:             cfg.Service,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		OpenAPISpec:         cfg.OpenAPISpec,
	})

	mux := http.NewServeMux()

	// Runs execute synchronously; the response carries the final report.
	mux.HandleFunc("POST /v1/runs", h.HandleCreateRun)
	mux.HandleFunc("GET /v1/traces/{trace_id}", h.HandleGetTrace)

	// Memory.
	mux.HandleFunc("GET /v1/incidents", h.HandleListIncidents)
	mux.HandleFunc("GET /v1/facts", h.HandleListFacts)

	// Health.
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET /openapi.yaml", h.HandleOpenAPISpec)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server, waiting for in-flight runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
