package ports

import (
	"context"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

// RoutingClient computes a road path through an ordered list of waypoints.
// Implementations return errors wrapping domain.ErrRoutingUnavailable,
// domain.ErrRoutingNoPath or domain.ErrRoutingMalformed.
type RoutingClient interface {
	Route(ctx context.Context, waypoints []domain.GeoPoint) (domain.RoutedPath, error)
}

// Geocoder resolves free-text place queries.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Place, error)
}

// EventPublisher delivers route changes to the rendering layer.
type EventPublisher interface {
	PublishRouteState(ctx context.Context, snap domain.RouteSnapshot) error
	PublishRouteGeometry(ctx context.Context, snap domain.RouteSnapshot) error
	PublishRouteAdded(ctx context.Context, snap domain.RouteSnapshot) error
	PublishRouteRemoved(ctx context.Context, routeID int64) error
	PublishTripCompleted(ctx context.Context, snap domain.RouteSnapshot) error
	PublishNotice(ctx context.Context, notice domain.Notice) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
