// Package postgres persists tickets, routes and the distance cache in
// PostgreSQL with the PostGIS extension for geospatial queries.
package postgres

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a PostgreSQL-backed implementation of the optimizer's persistence
// interfaces and the API's Storage surface.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// New wraps an existing connection pool.
func New(pool *pgxpool.Pool, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, log: log}
}
