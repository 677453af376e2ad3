package domain

import (
	"time"
)

// Waypoint is a user-placed point delimiting a route.
type Waypoint struct {
	GeoPoint
	Name  string `json:"name,omitempty"`
	Index int    `json:"index"`
}

// Route is a simulated trip: waypoints, the path between them, and the
// playback state along that path.
type Route struct {
	ID             int64         `json:"id"`
	Waypoints      []Waypoint    `json:"waypoints"`
	Geometry       RouteGeometry `json:"geometry"`
	TraveledMeters float64       `json:"traveled_meters"`
	SpeedKmh       float64       `json:"speed_kmh"`
	IsPlaying      bool          `json:"is_playing"`
	// Generation increments on every recompute request. Routing results
	// carrying an older generation are discarded.
	Generation uint64    `json:"generation"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewRoute returns an empty, stopped route.
func NewRoute(id int64, speedKmh float64, now time.Time) *Route {
	return &Route{
		ID:        id,
		Geometry:  EmptyGeometry(),
		SpeedKmh:  speedKmh,
		CreatedAt: now,
	}
}

// TotalMeters is the length of the current geometry.
func (r *Route) TotalMeters() float64 {
	return r.Geometry.Total()
}

// RemainingMeters is the distance left to travel.
func (r *Route) RemainingMeters() float64 {
	return max(0, r.TotalMeters()-r.TraveledMeters)
}

// Progress returns traveled/total in [0,1].
func (r *Route) Progress() float64 {
	total := r.TotalMeters()
	if total == 0 {
		return 0
	}
	return r.TraveledMeters / total
}

// Position is the current point along the geometry.
func (r *Route) Position() (GeoPoint, bool) {
	return r.Geometry.PositionAtDistance(r.TraveledMeters)
}

// ClampTraveled keeps TraveledMeters within [0, TotalMeters]. A route that
// cannot move is stopped.
func (r *Route) ClampTraveled() {
	total := r.TotalMeters()
	r.TraveledMeters = min(max(r.TraveledMeters, 0), total)
	if total == 0 {
		r.IsPlaying = false
	}
}

// SetGeometry replaces the geometry and re-establishes the distance bounds.
func (r *Route) SetGeometry(g RouteGeometry) {
	r.Geometry = g
	r.ClampTraveled()
}

// Points returns the waypoint coordinates in order.
func (r *Route) Points() []GeoPoint {
	out := make([]GeoPoint, len(r.Waypoints))
	for i, w := range r.Waypoints {
		out[i] = w.GeoPoint
	}
	return out
}

// Reindex rewrites waypoint ordinals after an insertion or removal.
func (r *Route) Reindex() {
	for i := range r.Waypoints {
		r.Waypoints[i].Index = i
	}
}

// RouteSnapshot is the read-only view of a route handed to renderers and APIs.
type RouteSnapshot struct {
	ID              int64          `json:"id"`
	Waypoints       []Waypoint     `json:"waypoints"`
	Position        *GeoPoint      `json:"position"`
	Camera          *GeoPoint      `json:"camera,omitempty"`
	TotalMeters     float64        `json:"total_meters"`
	TraveledMeters  float64        `json:"traveled_meters"`
	RemainingMeters float64        `json:"remaining_meters"`
	Progress        float64        `json:"progress"`
	SpeedKmh        float64        `json:"speed_kmh"`
	IsPlaying       bool           `json:"is_playing"`
	Source          GeometrySource `json:"source"`
	Geometry        []GeoPoint     `json:"geometry,omitempty"`
	Bounds          *Bounds        `json:"bounds,omitempty"`
}

// Snapshot projects the route. Geometry points are included only when
// withGeometry is set.
func (r *Route) Snapshot(withGeometry bool) RouteSnapshot {
	wps := make([]Waypoint, len(r.Waypoints))
	copy(wps, r.Waypoints)

	s := RouteSnapshot{
		ID:              r.ID,
		Waypoints:       wps,
		TotalMeters:     r.TotalMeters(),
		TraveledMeters:  r.TraveledMeters,
		RemainingMeters: r.RemainingMeters(),
		Progress:        r.Progress(),
		SpeedKmh:        r.SpeedKmh,
		IsPlaying:       r.IsPlaying,
		Source:          r.Geometry.Source,
	}
	if pos, ok := r.Position(); ok {
		s.Position = &pos
	}
	if withGeometry {
		s.Geometry = make([]GeoPoint, len(r.Geometry.Points))
		copy(s.Geometry, r.Geometry.Points)
		if b, ok := r.Geometry.Bounds(); ok {
			s.Bounds = &b
		}
	}
	return s
}

// Place is a geocoding candidate.
type Place struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	DisplayName string  `json:"display_name"`
	ShortName   string  `json:"short_name"`
	Type        string  `json:"type"`
}

// Point returns the place location.
func (p Place) Point() GeoPoint {
	return GeoPoint{Lat: p.Lat, Lon: p.Lon}
}
