package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Sensor session
		r.Get("/status", s.HandleStatus)
		r.Get("/contact-resistance", s.HandleContactResistance)

		// Measurement control
		r.Route("/measurement", func(r chi.Router) {
			r.Post("/start", s.HandleStartMeasurement)
			r.Post("/stop", s.HandleStopMeasurement)
		})

		// Recordings
		r.Route("/recordings", func(r chi.Router) {
			r.Get("/", s.HandleListRecordings)
			r.Get("/{id}", s.HandleGetRecording)
		})

		// Events
		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.HandleListEvents)
		})
	})
}
