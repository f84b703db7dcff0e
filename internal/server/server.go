package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"delivery/internal/config"
)

const requestTimeout = 30 * time.Second

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	logger     *zerolog.Logger
	config     *config.Config
	name       string

	orders   OrderCreator
	delivery DeliveryDeps
}

// NewOrderServer creates the HTTP server of the order service
func NewOrderServer(cfg *config.Config, orders OrderCreator, logger *zerolog.Logger) *Server {
	s := &Server{logger: logger, config: cfg, name: "order-service", orders: orders}
	s.httpServer = s.newHTTPServer(s.orderRoutes())
	return s
}

// NewDeliveryServer creates the HTTP server of the delivery service
func NewDeliveryServer(cfg *config.Config, deps DeliveryDeps, logger *zerolog.Logger) *Server {
	s := &Server{logger: logger, config: cfg, name: "delivery-service", delivery: deps}
	s.httpServer = s.newHTTPServer(s.deliveryRoutes())
	return s
}

func (s *Server) newHTTPServer(mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:         s.config.GetServerAddress(),
		Handler:      s.wrap(mux),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}

	return nil
}

// orderRoutes configures the routes of the order service
func (s *Server) orderRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/health", s.handleHealth)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// deliveryRoutes configures the routes of the delivery service
func (s *Server) deliveryRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/delivery/health", s.handleHealth)
	mux.HandleFunc("GET /api/delivery/status", s.handleStatus)
	mux.HandleFunc("GET /api/delivery/{order_id}", s.handleGetDelivery)
	mux.HandleFunc("POST /api/delivery/dlq/{queue}/reprocess", s.handleReprocess)
	if s.delivery.Metrics != nil {
		mux.Handle("GET /metrics", s.delivery.Metrics)
	}

	return mux
}

func (s *Server) wrap(mux *http.ServeMux) http.Handler {
	handler := s.loggingMiddleware(mux)
	handler = s.timeoutMiddleware(handler)
	handler = s.recoveryMiddleware(handler)

	return handler
}

// loggingMiddleware adds request logging
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			s.logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapper.statusCode).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		},
	)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// timeoutMiddleware adds request timeout handling
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.TimeoutHandler(next, requestTimeout, `{"error":"Request timeout"}`)
}

// recoveryMiddleware handles panics and converts them to 500 errors
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					s.logger.Error().
						Interface("panic", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered in HTTP handler")

					http.Error(w, `{"error":"Internal server error"}`, http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		},
	)
}
