package ports

import (
	"context"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

// GeocodeCacheEntry is a stored geocoding answer.
type GeocodeCacheEntry struct {
	Query     string
	Places    []domain.Place
	FetchedAt time.Time
}

// GeocodeCacheRepository persists geocoding results keyed by normalized query.
type GeocodeCacheRepository interface {
	Get(ctx context.Context, query string) (*GeocodeCacheEntry, error)
	Put(ctx context.Context, entry GeocodeCacheEntry) error
}
