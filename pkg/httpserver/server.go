package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mselser95/dex-router/internal/circuitbreaker"
	"github.com/mselser95/dex-router/pkg/healthprobe"
	"github.com/mselser95/dex-router/pkg/types"
)

// OrderService is the slice of the execution coordinator the API exposes.
type OrderService interface {
	SubmitOrder(ctx context.Context, userID string, intent types.Intent) (*types.Order, error)
	OrderStatus(orderID string) (*types.Order, error)
	CancelOrder(orderID string) error
}

// BreakerRegistry serves breaker state for the operational endpoint.
type BreakerRegistry interface {
	Snapshots() []circuitbreaker.Snapshot
}

// Server provides the order API plus metrics and health endpoints.
type Server struct {
	server        *http.Server
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
}

// Config holds server configuration.
type Config struct {
	Port          string
	Logger        *zap.Logger
	HealthChecker *healthprobe.HealthChecker
	Orders        OrderService
	Breakers      BreakerRegistry
}

// New creates a new HTTP server.
func New(cfg *Config) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/health", cfg.HealthChecker.Health())
	r.Get("/ready", cfg.HealthChecker.Ready())

	if cfg.Orders != nil {
		handler := NewOrderHandler(cfg.Orders, cfg.Logger)
		r.Route("/api/v1/orders", func(r chi.Router) {
			r.Post("/", handler.HandleSubmit)
			r.Get("/{orderID}", handler.HandleStatus)
			r.Delete("/{orderID}", handler.HandleCancel)
		})
	}

	if cfg.Breakers != nil {
		handler := NewBreakerHandler(cfg.Breakers, cfg.Logger)
		r.Get("/api/v1/breakers", handler.HandleList)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		server:        server,
		logger:        cfg.Logger,
		healthChecker: cfg.HealthChecker,
	}
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
// This is a blocking call that returns when the server stops or encounters an error.
func (s *Server) Start() error {
	s.logger.Info("http-server-starting", zap.String("addr", s.server.Addr))

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http-server-shutting-down")

	err := s.server.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("http-server-shutdown-complete")
	return nil
}
