package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/ports"
	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

// SearchService resolves place names into waypoint candidates.
type SearchService struct {
	geocoder ports.Geocoder
	cache    ports.GeocodeCacheRepository
	limit    int
	ttl      time.Duration
	now      func() time.Time
}

// NewSearchService creates a new SearchService. cache may be nil.
func NewSearchService(geocoder ports.Geocoder, cache ports.GeocodeCacheRepository, limit int, ttl time.Duration) *SearchService {
	if limit <= 0 {
		limit = 5
	}
	return &SearchService{geocoder: geocoder, cache: cache, limit: limit, ttl: ttl, now: time.Now}
}

// Search returns up to limit places matching query, ranked by the geocoder.
func (s *SearchService) Search(ctx context.Context, query string) ([]domain.Place, error) {
	key := normalizeQuery(query)
	if key == "" {
		return nil, domain.ErrEmptyQuery
	}

	if s.cache != nil {
		entry, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("geocode cache read failed", "query", key, "error", err)
		case entry != nil && (s.ttl <= 0 || s.now().Sub(entry.FetchedAt) < s.ttl):
			metrics.CacheHits.WithLabelValues("geocode").Inc()
			return entry.Places, nil
		}
		metrics.CacheMisses.WithLabelValues("geocode").Inc()
	}

	query = strings.TrimSpace(query)
	places, err := s.geocoder.Search(ctx, query, s.limit)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}

	if s.cache != nil {
		entry := ports.GeocodeCacheEntry{Query: key, Places: places, FetchedAt: s.now()}
		if err := s.cache.Put(ctx, entry); err != nil {
			slog.Warn("geocode cache write failed", "query", key, "error", err)
		}
	}
	return places, nil
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
