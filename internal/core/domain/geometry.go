package domain

import (
	"fmt"

	"github.com/samirrijal/tripsim/internal/pkg/geospatial"
)

// GeometrySource records how a route geometry was obtained.
type GeometrySource string

const (
	SourceNone   GeometrySource = "none"
	SourceRouted GeometrySource = "routed"
	SourceDirect GeometrySource = "direct"
)

// RoutedPath is what a routing service returns for a list of waypoints.
type RoutedPath struct {
	Points         []GeoPoint `json:"points"`
	DistanceMeters float64    `json:"distance_meters"`
}

// RouteGeometry is the path a route travels along, together with its
// cumulative-distance table. It is immutable once built; a route replaces its
// geometry wholesale.
type RouteGeometry struct {
	Points     []GeoPoint     `json:"points"`
	Cumulative []float64      `json:"cumulative"`
	Source     GeometrySource `json:"source"`
	// ReportedMeters is the distance claimed by the routing service, if any.
	// Playback always uses the cumulative table.
	ReportedMeters float64 `json:"reported_meters,omitempty"`
}

// BuildGeometry constructs a geometry over points.
func BuildGeometry(points []GeoPoint, source GeometrySource) RouteGeometry {
	pts := make([]GeoPoint, len(points))
	copy(pts, points)
	return RouteGeometry{
		Points:     pts,
		Cumulative: CumulativeDistances(pts),
		Source:     source,
	}
}

// EmptyGeometry is the geometry of a route with fewer than two waypoints.
func EmptyGeometry() RouteGeometry {
	return RouteGeometry{Source: SourceNone}
}

// FromRoutingService builds a geometry from a routing service response.
func FromRoutingService(path RoutedPath) (RouteGeometry, error) {
	if len(path.Points) < 2 {
		return RouteGeometry{}, fmt.Errorf("%w: %d points", ErrRoutingNoPath, len(path.Points))
	}
	for i, p := range path.Points {
		if !p.Valid() {
			return RouteGeometry{}, fmt.Errorf("%w: point %d (%f, %f)", ErrRoutingMalformed, i, p.Lat, p.Lon)
		}
	}
	g := BuildGeometry(path.Points, SourceRouted)
	g.ReportedMeters = path.DistanceMeters
	return g, nil
}

// FromWaypointsDirect builds a straight-line geometry through the waypoints.
func FromWaypointsDirect(waypoints []Waypoint) RouteGeometry {
	if len(waypoints) < 2 {
		return EmptyGeometry()
	}
	points := make([]GeoPoint, len(waypoints))
	for i, w := range waypoints {
		points[i] = w.GeoPoint
	}
	return BuildGeometry(points, SourceDirect)
}

// Total returns the path length in meters, or 0 for fewer than two points.
func (g RouteGeometry) Total() float64 {
	if len(g.Points) < 2 || len(g.Cumulative) == 0 {
		return 0
	}
	return g.Cumulative[len(g.Cumulative)-1]
}

// Playable reports whether the geometry has a non-zero length to travel.
func (g RouteGeometry) Playable() bool {
	return g.Total() > 0
}

// PositionAtDistance returns the point reached after traveling the given
// distance along the path. ok is false when the geometry has no length.
func (g RouteGeometry) PositionAtDistance(traveled float64) (p GeoPoint, ok bool) {
	total := g.Total()
	if len(g.Points) == 0 || total == 0 {
		return GeoPoint{}, false
	}
	if traveled <= 0 {
		return g.Points[0], true
	}
	if traveled >= total {
		return g.Points[len(g.Points)-1], true
	}

	i := 0
	for i < len(g.Cumulative) && g.Cumulative[i] < traveled {
		i++
	}
	i = max(i, 1)

	start, end := g.Cumulative[i-1], g.Cumulative[i]
	var t float64
	if seg := end - start; seg > 0 {
		t = (traveled - start) / seg
	}

	a, b := g.Points[i-1], g.Points[i]
	p.Lat, p.Lon = geospatial.Lerp(a.Lat, a.Lon, b.Lat, b.Lon, t)
	return p, true
}

// Bounds returns the bounding box of the geometry.
func (g RouteGeometry) Bounds() (Bounds, bool) {
	return BoundsOf(g.Points)
}
