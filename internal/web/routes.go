package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veriface/attendance/internal/web/handlers"
)

func (s *Server) setupRoutes(stores Stores, deps Deps, registry *prometheus.Registry) {
	maxImageBytes := s.config.Attendance.MaxImageBytes

	// Create handlers
	facesHandler := handlers.NewFacesHandler(deps.Counter, deps.Matcher, maxImageBytes, s.metrics)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Engine, stores.Records, stores.Classes, deps.Geocoder, deps.Index, maxImageBytes, s.metrics)
	registerHandler := handlers.NewRegisterHandler(deps.Embedder, stores.Users, deps.Index, maxImageBytes)
	classesHandler := handlers.NewClassesHandler(stores.Classes, deps.Catalog)
	subjectsHandler := handlers.NewSubjectsHandler(deps.Catalog)

	// Stateless face endpoints keep their historical root-level paths; the
	// capture client calls them directly.
	s.router.Post("/detect-face", facesHandler.DetectFace)
	s.router.Post("/compare-faces", facesHandler.CompareFaces)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/attendance", attendanceHandler.Mark)
		r.Get("/attendance", attendanceHandler.List)
		r.Put("/attendance/{id}", attendanceHandler.Override)
		r.Post("/attendance/sweep", attendanceHandler.Sweep)

		r.Post("/register-face", registerHandler.Register)

		r.Get("/classes", classesHandler.List)
		r.Post("/classes", classesHandler.Create)
		r.Post("/enrollments", classesHandler.Enroll)

		r.Get("/subjects", subjectsHandler.List)
	})

	// Prometheus metrics
	s.router.Method("GET", "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
