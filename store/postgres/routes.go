package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/urbanworks/dispatch/optimizer"
)

// SaveRoute stores a route snapshot and returns its assigned id. Stops, the
// drop manifest and the statistics are stored as jsonb documents; a route is
// an immutable artifact of one optimization run.
func (s *Store) SaveRoute(ctx context.Context, route *optimizer.Route) (string, error) {
	id := route.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO routes (
			id, crew_type, route_date, stops, total_distance_km,
			total_time_minutes, statistics, dropped, reordered, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, route.CrewType, route.Date, route.Stops, route.TotalDistanceKm,
		route.TotalTimeMinutes, route.Statistics, route.Dropped,
		route.ReorderedForDependencies, route.Status,
	)
	if err != nil {
		return "", fmt.Errorf("insert route: %w", err)
	}
	return id, nil
}

const routeColumns = `
	id, crew_type, route_date, stops, total_distance_km, total_time_minutes,
	statistics, dropped, reordered, status`

func scanRoute(row pgx.Row) (optimizer.Route, error) {
	var r optimizer.Route
	err := row.Scan(
		&r.ID, &r.CrewType, &r.Date, &r.Stops, &r.TotalDistanceKm,
		&r.TotalTimeMinutes, &r.Statistics, &r.Dropped,
		&r.ReorderedForDependencies, &r.Status,
	)
	return r, err
}

// GetRoute returns a stored route by id.
func (s *Store) GetRoute(ctx context.Context, id string) (optimizer.Route, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM routes WHERE id = $1`, id)
	r, err := scanRoute(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return optimizer.Route{}, fmt.Errorf("route %s: %w", id, optimizer.ErrNotFound)
	}
	if err != nil {
		return optimizer.Route{}, fmt.Errorf("get route %s: %w", id, err)
	}
	return r, nil
}

// ListRoutes returns stored routes, optionally filtered by crew type and
// date, newest first.
func (s *Store) ListRoutes(ctx context.Context, crew optimizer.CrewType, date string) ([]optimizer.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM routes`
	var args []any
	var where []string
	if crew != "" {
		args = append(args, crew)
		where = append(where, fmt.Sprintf("crew_type = $%d", len(args)))
	}
	if date != "" {
		args = append(args, date)
		where = append(where, fmt.Sprintf("route_date = $%d", len(args)))
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []optimizer.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
