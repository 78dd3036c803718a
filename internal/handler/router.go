package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router with the global middleware stack.
func NewRouter(h *SchedulingHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Get("/locations", h.ListLocations)
	r.Route("/session", func(r chi.Router) {
		r.Get("/location", h.GetActiveLocation)
		r.Put("/location", h.SelectLocation)
		r.Post("/refresh", h.RefreshSession)
	})
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.CreateAppointment)
		r.Get("/", h.ListAppointments)
	})
	r.Route("/settings", func(r chi.Router) {
		r.Get("/notifications", h.GetNotificationSettings)
		r.Put("/notifications", h.UpdateNotificationSettings)
	})
	return r
}
