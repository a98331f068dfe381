// Package memory provides an in-memory implementation of the optimizer's
// persistence interfaces, used in tests and for local development without a
// database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/urbanworks/dispatch/optimizer"
)

// Store holds tickets, routes and cached distances in process memory. Safe
// for concurrent use.
type Store struct {
	mu        sync.RWMutex
	tickets   map[string]optimizer.Ticket
	routes    map[string]optimizer.Route
	distances map[string][2]float64 // km, minutes

	// FailDistanceCache makes the distance-cache methods return errors, for
	// exercising the oracle's compute-only fallback.
	FailDistanceCache bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickets:   make(map[string]optimizer.Ticket),
		routes:    make(map[string]optimizer.Route),
		distances: make(map[string][2]float64),
	}
}

// PutTicket inserts or replaces a ticket.
func (s *Store) PutTicket(t optimizer.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
}

// PutTickets inserts or replaces a batch of tickets.
func (s *Store) PutTickets(tickets ...optimizer.Ticket) {
	for _, t := range tickets {
		s.PutTicket(t)
	}
}

// CreateTicket inserts a ticket, rejecting duplicate ids.
func (s *Store) CreateTicket(_ context.Context, t optimizer.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[t.ID]; exists {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	s.tickets[t.ID] = t
	return nil
}

// GetTicket returns the ticket with the given id.
func (s *Store) GetTicket(_ context.Context, id string) (optimizer.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return optimizer.Ticket{}, fmt.Errorf("ticket %s: %w", id, optimizer.ErrNotFound)
	}
	return t, nil
}

// ListNearbyTickets returns open tickets within radiusKm of a point, nearest
// first.
func (s *Store) ListNearbyTickets(_ context.Context, lat, lon, radiusKm float64) ([]optimizer.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type withDist struct {
		t  optimizer.Ticket
		km float64
	}
	var near []withDist
	for _, t := range s.tickets {
		if t.Status != optimizer.StatusOpen {
			continue
		}
		km := optimizer.HaversineKm(lat, lon, t.Lat, t.Lon)
		if km <= radiusKm {
			near = append(near, withDist{t: t, km: km})
		}
	}
	sort.Slice(near, func(i, j int) bool {
		if near[i].km != near[j].km {
			return near[i].km < near[j].km
		}
		return near[i].t.ID < near[j].t.ID
	})
	out := make([]optimizer.Ticket, len(near))
	for i := range near {
		out[i] = near[i].t
	}
	return out, nil
}

// ListOpenTickets returns the open tickets for one crew type, ordered by id
// for determinism.
func (s *Store) ListOpenTickets(_ context.Context, crew optimizer.CrewType) ([]optimizer.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []optimizer.Ticket
	for _, t := range s.tickets {
		if t.Status == optimizer.StatusOpen && t.CrewType == crew {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListTickets returns all tickets, optionally filtered by status, ordered by
// id.
func (s *Store) ListTickets(_ context.Context, status optimizer.TicketStatus) ([]optimizer.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []optimizer.Ticket
	for _, t := range s.tickets {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateTicketStatus transitions a ticket's lifecycle state.
func (s *Store) UpdateTicketStatus(_ context.Context, id string, status optimizer.TicketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s: %w", id, optimizer.ErrNotFound)
	}
	t.Status = status
	s.tickets[id] = t
	return nil
}

// SaveRoute stores a route snapshot and returns its assigned id.
func (s *Store) SaveRoute(_ context.Context, route *optimizer.Route) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := route.ID
	if id == "" {
		id = uuid.NewString()
	}
	saved := *route
	saved.ID = id
	s.routes[id] = saved
	return id, nil
}

// GetRoute returns a stored route by id.
func (s *Store) GetRoute(_ context.Context, id string) (optimizer.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return optimizer.Route{}, fmt.Errorf("route %s: %w", id, optimizer.ErrNotFound)
	}
	return r, nil
}

// ListRoutes returns stored routes, optionally filtered by crew type and
// date, ordered by id.
func (s *Store) ListRoutes(_ context.Context, crew optimizer.CrewType, date string) ([]optimizer.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []optimizer.Route
	for _, r := range s.routes {
		if crew != "" && r.CrewType != crew {
			continue
		}
		if date != "" && r.Date != date {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetDistance implements optimizer.CacheStore.
func (s *Store) GetDistance(_ context.Context, key string) (km, minutes float64, ok bool, err error) {
	if s.FailDistanceCache {
		return 0, 0, false, fmt.Errorf("distance cache unavailable")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.distances[key]
	if !ok {
		return 0, 0, false, nil
	}
	return e[0], e[1], true, nil
}

// PutDistance implements optimizer.CacheStore.
func (s *Store) PutDistance(_ context.Context, key string, km, minutes float64) error {
	if s.FailDistanceCache {
		return fmt.Errorf("distance cache unavailable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.distances[key] = [2]float64{km, minutes}
	return nil
}

// DistanceCount returns the number of cached distance entries.
func (s *Store) DistanceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.distances)
}
