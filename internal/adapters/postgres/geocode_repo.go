package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/ports"
)

// GeocodeRepo implements ports.GeocodeCacheRepository on the geocode_cache table.
type GeocodeRepo struct {
	db *DB
}

func NewGeocodeRepo(db *DB) *GeocodeRepo {
	return &GeocodeRepo{db: db}
}

// Get returns nil, nil when no entry exists for query.
func (r *GeocodeRepo) Get(ctx context.Context, query string) (*ports.GeocodeCacheEntry, error) {
	var (
		raw       []byte
		fetchedAt time.Time
	)
	err := r.db.Pool.QueryRow(ctx,
		`SELECT places, fetched_at FROM geocode_cache WHERE query = $1`, query,
	).Scan(&raw, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query geocode cache: %w", err)
	}

	var places []domain.Place
	if err := json.Unmarshal(raw, &places); err != nil {
		return nil, fmt.Errorf("decode cached places: %w", err)
	}
	return &ports.GeocodeCacheEntry{Query: query, Places: places, FetchedAt: fetchedAt}, nil
}

// Put upserts an entry.
func (r *GeocodeRepo) Put(ctx context.Context, e ports.GeocodeCacheEntry) error {
	places := e.Places
	if places == nil {
		places = []domain.Place{}
	}
	raw, err := json.Marshal(places)
	if err != nil {
		return fmt.Errorf("encode places: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO geocode_cache (query, places, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (query) DO UPDATE
		SET places = EXCLUDED.places, fetched_at = EXCLUDED.fetched_at`,
		e.Query, raw, e.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert geocode cache: %w", err)
	}
	return nil
}

// Purge deletes entries fetched before cutoff and returns how many were removed.
func (r *GeocodeRepo) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM geocode_cache WHERE fetched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge geocode cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
