package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/ports"
	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

// CachingRouter memoizes successful routing answers. Failures are never
// cached so a recovered routing service is picked up on the next edit.
type CachingRouter struct {
	next    ports.RoutingClient
	cache   ports.CacheService
	profile string
	ttl     time.Duration
}

// NewCachingRouter wraps next. A nil cache disables caching.
func NewCachingRouter(next ports.RoutingClient, cache ports.CacheService, profile string, ttl time.Duration) *CachingRouter {
	return &CachingRouter{next: next, cache: cache, profile: profile, ttl: ttl}
}

// Route implements ports.RoutingClient.
func (c *CachingRouter) Route(ctx context.Context, waypoints []domain.GeoPoint) (domain.RoutedPath, error) {
	if c.cache == nil {
		return c.next.Route(ctx, waypoints)
	}

	key := RouteCacheKey(c.profile, waypoints)
	if data, err := c.cache.Get(ctx, key); err == nil {
		var path domain.RoutedPath
		if err := json.Unmarshal(data, &path); err == nil && len(path.Points) >= 2 {
			metrics.CacheHits.WithLabelValues("routing").Inc()
			return path, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("routing").Inc()

	path, err := c.next.Route(ctx, waypoints)
	if err != nil {
		return domain.RoutedPath{}, err
	}

	if data, err := json.Marshal(path); err == nil {
		if err := c.cache.Set(ctx, key, data, int(c.ttl.Seconds())); err != nil {
			slog.Debug("routing cache set failed", "key", key, "error", err)
		}
	}
	return path, nil
}

// RouteCacheKey builds the cache key for a waypoint list. Coordinates are
// rounded to 6 decimals (about 0.1m).
func RouteCacheKey(profile string, waypoints []domain.GeoPoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "route:%s:", profile)
	for i, p := range waypoints {
		if i > 0 {
			b.WriteByte(';')
		}
		fmt.Fprintf(&b, "%.6f,%.6f", p.Lat, p.Lon)
	}
	return b.String()
}
