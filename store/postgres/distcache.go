package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetDistance implements optimizer.CacheStore. Entries never invalidate, so a
// hit is always authoritative for the run.
func (s *Store) GetDistance(ctx context.Context, key string) (km, minutes float64, ok bool, err error) {
	row := s.pool.QueryRow(ctx,
		`SELECT km, minutes FROM distance_cache WHERE pair_key = $1`, key)
	err = row.Scan(&km, &minutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("get cached distance: %w", err)
	}
	return km, minutes, true, nil
}

// PutDistance implements optimizer.CacheStore. Racing writers compute the
// same value, so conflicts are ignored.
func (s *Store) PutDistance(ctx context.Context, key string, km, minutes float64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO distance_cache (pair_key, km, minutes)
		VALUES ($1, $2, $3)
		ON CONFLICT (pair_key) DO NOTHING`, key, km, minutes)
	if err != nil {
		return fmt.Errorf("put cached distance: %w", err)
	}
	return nil
}
