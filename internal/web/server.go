// Package web wires the HTTP surface: the stateless face endpoints at the
// root, the application API under /api/v1 and Prometheus metrics.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/veriface/attendance/internal/catalog"
	"github.com/veriface/attendance/internal/config"
	"github.com/veriface/attendance/internal/database"
	"github.com/veriface/attendance/internal/web/handlers"
	"github.com/veriface/attendance/internal/web/middleware"
)

// Stores bundles the storage backends the server needs.
type Stores struct {
	Records database.RecordStore
	Users   database.UserStore
	Classes database.ClassStore
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Engine   handlers.DecisionEngine
	Counter  handlers.FaceCounter
	Matcher  handlers.DetailedMatcher
	Embedder handlers.Embedder
	Geocoder handlers.Geocoder
	Index    *database.ReferenceIndex
	Catalog  *catalog.Catalog
	Registry *prometheus.Registry
}

// Server represents the web server
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	metrics    *handlers.Metrics
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, port int, host string, stores Stores, deps Deps) *Server {
	r := chi.NewRouter()

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		config:  cfg,
		router:  r,
		metrics: handlers.NewMetrics(registry),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(2 * time.Minute))
	r.Use(middleware.CORS())

	// Set up routes
	s.setupRoutes(stores, deps, registry)

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // comparisons upload images and wait on the face backend
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
