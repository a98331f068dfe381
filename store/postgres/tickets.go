package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/urbanworks/dispatch/optimizer"
)

const ticketColumns = `
	id, lat, lon, problem_type, priority, crew_type, problem_size,
	estimated_service_minutes, affects_traffic, affects_commerce,
	near_critical_location, main_road, complaints_count, requires_road_block,
	dependencies, status, urgency_score`

func scanTicket(row pgx.Row) (optimizer.Ticket, error) {
	var t optimizer.Ticket
	err := row.Scan(
		&t.ID, &t.Lat, &t.Lon, &t.ProblemType, &t.Priority, &t.CrewType,
		&t.ProblemSize, &t.ServiceMinutes, &t.AffectsTraffic, &t.AffectsCommerce,
		&t.NearCriticalLocation, &t.MainRoad, &t.ComplaintsCount,
		&t.RequiresRoadBlock, &t.Dependencies, &t.Status, &t.UrgencyScore,
	)
	return t, err
}

func collectTickets(rows pgx.Rows) ([]optimizer.Ticket, error) {
	defer rows.Close()
	var out []optimizer.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateTicket inserts a new ticket.
func (s *Store) CreateTicket(ctx context.Context, t optimizer.Ticket) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tickets (
			id, lat, lon, problem_type, priority, crew_type, problem_size,
			estimated_service_minutes, affects_traffic, affects_commerce,
			near_critical_location, main_road, complaints_count,
			requires_road_block, dependencies, status, urgency_score
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.Lat, t.Lon, t.ProblemType, t.Priority, t.CrewType, t.ProblemSize,
		t.ServiceMinutes, t.AffectsTraffic, t.AffectsCommerce,
		t.NearCriticalLocation, t.MainRoad, t.ComplaintsCount,
		t.RequiresRoadBlock, t.Dependencies, t.Status, t.UrgencyScore,
	)
	if err != nil {
		return fmt.Errorf("insert ticket %s: %w", t.ID, err)
	}
	return nil
}

// GetTicket returns one ticket by id.
func (s *Store) GetTicket(ctx context.Context, id string) (optimizer.Ticket, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return optimizer.Ticket{}, fmt.Errorf("ticket %s: %w", id, optimizer.ErrNotFound)
	}
	if err != nil {
		return optimizer.Ticket{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	return t, nil
}

// ListTickets returns all tickets, optionally filtered by status, ordered by
// id.
func (s *Store) ListTickets(ctx context.Context, status optimizer.TicketStatus) ([]optimizer.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return collectTickets(rows)
}

// ListOpenTickets returns the open tickets for one crew type, ordered by id.
func (s *Store) ListOpenTickets(ctx context.Context, crew optimizer.CrewType) ([]optimizer.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = 'open' AND crew_type = $1
		ORDER BY id`, crew)
	if err != nil {
		return nil, fmt.Errorf("list open tickets for %s: %w", crew, err)
	}
	return collectTickets(rows)
}

// ListNearbyTickets returns open tickets within radiusKm of a point, nearest
// first, using the PostGIS geography index.
func (s *Store) ListNearbyTickets(ctx context.Context, lat, lon, radiusKm float64) ([]optimizer.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE status = 'open'
		  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, $3)
		ORDER BY location <-> ST_SetSRID(ST_MakePoint($2, $1), 4326)::geography, id`,
		lat, lon, radiusKm*1000,
	)
	if err != nil {
		return nil, fmt.Errorf("list nearby tickets: %w", err)
	}
	return collectTickets(rows)
}

// UpdateTicketStatus transitions a ticket's lifecycle state.
func (s *Store) UpdateTicketStatus(ctx context.Context, id string, status optimizer.TicketStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tickets SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update ticket %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ticket %s: %w", id, optimizer.ErrNotFound)
	}
	return nil
}
