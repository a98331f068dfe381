package handlers

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the API endpoints on a router. Init must have been called.
func Routes(r chi.Router) {
	r.Get("/api/version", GetVersion)
	r.Get("/api/stats", GetStats)

	r.Post("/api/tickets", CreateTicket)
	r.Get("/api/tickets", GetTickets)
	r.Get("/api/tickets/nearby", GetNearbyTickets)
	r.Get("/api/tickets/{id}", GetTicket)
	r.Patch("/api/tickets/{id}/status", UpdateTicketStatus)

	r.Post("/api/optimize", PostOptimize)

	r.Get("/api/routes", GetRoutes)
	r.Get("/api/routes/{id}", GetRoute)
}
