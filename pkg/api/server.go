package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/aite550659-max/agent-trust-protocol/internal/config"
	"github.com/aite550659-max/agent-trust-protocol/internal/logger"
	"github.com/aite550659-max/agent-trust-protocol/pkg/api/docs"
)

// Ensure docs are initialized
var _ = docs.SwaggerInfo

const shutdownCtxTimeout = 10 * time.Second

// Server is the read API HTTP server.
type Server struct {
	config  *config.APIConfig
	handler *Handler
	server  *http.Server
	log     *logger.Logger
}

// NewServer creates a new API server.
func NewServer(cfg *config.APIConfig, reader Reader, ingestion Ingestion, log *logger.Logger) *Server {
	handler := NewHandler(reader, ingestion, log)

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("GET /health", handler.Health)

	// Projected entity endpoints
	mux.HandleFunc("GET /api/v1/agents", handler.ListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", handler.GetAgent)
	mux.HandleFunc("GET /api/v1/agents/{id}/events", handler.ListAgentEvents)
	mux.HandleFunc("GET /api/v1/rentals", handler.ListRentals)
	mux.HandleFunc("GET /api/v1/rentals/{id}", handler.GetRental)
	mux.HandleFunc("GET /api/v1/comms", handler.ListComms)

	// Substrate record and topic management endpoints
	mux.HandleFunc("GET /api/v1/topics/{id}/messages", handler.ListMessages)
	mux.HandleFunc("POST /api/v1/topics", handler.AddTopic)

	// Event schema surface
	mux.HandleFunc("GET /api/v1/schemas", handler.GetSchemas)

	// Swagger documentation endpoints
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))

	// Apply middleware
	var h http.Handler = mux
	h = RecoveryMiddleware(log)(h)
	h = LoggingMiddleware(log)(h)

	if cfg.CORS.Enabled {
		h = CORSMiddleware(cfg.CORS.AllowedOrigins)(h)
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout.Duration,
		WriteTimeout: cfg.WriteTimeout.Duration,
		IdleTimeout:  cfg.IdleTimeout.Duration,
	}

	return &Server{
		config:  cfg,
		handler: handler,
		server:  httpServer,
		log:     log,
	}
}

// Start starts the API server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API server is disabled")
		return nil
	}

	s.log.Infof("Starting API server on %s", s.config.ListenAddress)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("API server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownCtxTimeout)
	defer cancel()

	s.log.Info("Shutting down API server...")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown error: %w", err)
	}

	s.log.Info("API server stopped")
	return nil
}
