package handlers

import (
	"context"
	"net/http"

	"github.com/urbanworks/dispatch/optimizer"
)

// Storage is the persistence surface the HTTP handlers need. Both the
// PostgreSQL store and the in-memory store satisfy it.
type Storage interface {
	CreateTicket(ctx context.Context, t optimizer.Ticket) error
	GetTicket(ctx context.Context, id string) (optimizer.Ticket, error)
	ListTickets(ctx context.Context, status optimizer.TicketStatus) ([]optimizer.Ticket, error)
	ListOpenTickets(ctx context.Context, crew optimizer.CrewType) ([]optimizer.Ticket, error)
	ListNearbyTickets(ctx context.Context, lat, lon, radiusKm float64) ([]optimizer.Ticket, error)
	UpdateTicketStatus(ctx context.Context, id string, status optimizer.TicketStatus) error
	SaveRoute(ctx context.Context, route *optimizer.Route) (string, error)
	GetRoute(ctx context.Context, id string) (optimizer.Route, error)
	ListRoutes(ctx context.Context, crew optimizer.CrewType, date string) ([]optimizer.Route, error)
}

var (
	store  Storage
	engine *optimizer.Engine
)

// Init wires the handler package to its store and optimization engine. Must
// be called before the router is mounted.
func Init(s Storage, e *optimizer.Engine) {
	store = s
	engine = e
}

// contextWithTimeout caps a request-scoped store operation.
func contextWithTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}
