package usecases

import (
	"fmt"
	"sort"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

// RecomputeRequest asks for a new geometry for a route. It carries the
// waypoints as they were when the request was issued.
type RecomputeRequest struct {
	RouteID    int64
	Generation uint64
	Waypoints  []domain.Waypoint
}

// Routable reports whether the request needs a routing call.
func (r RecomputeRequest) Routable() bool {
	return len(r.Waypoints) >= 2
}

// Points returns the waypoint coordinates.
func (r RecomputeRequest) Points() []domain.GeoPoint {
	out := make([]domain.GeoPoint, len(r.Waypoints))
	for i, w := range r.Waypoints {
		out[i] = w.GeoPoint
	}
	return out
}

// RecomputeResult is the answer to a RecomputeRequest. Err is set when the
// routing call failed.
type RecomputeResult struct {
	RecomputeRequest
	Path domain.RoutedPath
	Err  error
}

// ApplyOutcome describes what ApplyRecompute did with a result.
type ApplyOutcome int

const (
	// OutcomeStale means the route was deleted or edited again since the request.
	OutcomeStale ApplyOutcome = iota
	OutcomeRouted
	OutcomeFallback
)

func (o ApplyOutcome) String() string {
	switch o {
	case OutcomeRouted:
		return "routed"
	case OutcomeFallback:
		return "fallback"
	default:
		return "stale"
	}
}

// RouteStore owns every route, keyed by stable ID. It is not safe for
// concurrent use; the Simulator serializes access.
type RouteStore struct {
	routes        map[int64]*domain.Route
	nextID        int64
	pendingDelete int64
	defaultSpeed  float64
	now           func() time.Time
}

// NewRouteStore creates an empty store. New routes start at defaultSpeedKmh.
func NewRouteStore(defaultSpeedKmh float64) *RouteStore {
	return &RouteStore{
		routes:       make(map[int64]*domain.Route),
		nextID:       1,
		defaultSpeed: defaultSpeedKmh,
		now:          time.Now,
	}
}

// CreateRoute adds an empty route with the next ID. IDs are never reused.
func (s *RouteStore) CreateRoute() *domain.Route {
	r := domain.NewRoute(s.nextID, s.defaultSpeed, s.now())
	s.nextID++
	s.routes[r.ID] = r
	return r
}

// EnsureActiveRoute returns the most recently created route, creating one if
// the store is empty.
func (s *RouteStore) EnsureActiveRoute() (r *domain.Route, created bool) {
	var latest *domain.Route
	for _, r := range s.routes {
		if latest == nil || r.ID > latest.ID {
			latest = r
		}
	}
	if latest != nil {
		return latest, false
	}
	return s.CreateRoute(), true
}

// Get returns a route by ID.
func (s *RouteStore) Get(id int64) (*domain.Route, error) {
	r, ok := s.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %d: %w", id, domain.ErrRouteNotFound)
	}
	return r, nil
}

// List returns all routes ordered by ID.
func (s *RouteStore) List() []*domain.Route {
	out := make([]*domain.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of routes.
func (s *RouteStore) Len() int {
	return len(s.routes)
}

// AddWaypoint appends a waypoint and starts a recompute.
func (s *RouteStore) AddWaypoint(id int64, p domain.GeoPoint, name string) (RecomputeRequest, error) {
	if !p.Valid() {
		return RecomputeRequest{}, fmt.Errorf("waypoint (%f, %f): %w", p.Lat, p.Lon, domain.ErrInvalidCoordinate)
	}
	r, err := s.Get(id)
	if err != nil {
		return RecomputeRequest{}, err
	}
	r.Waypoints = append(r.Waypoints, domain.Waypoint{GeoPoint: p, Name: name, Index: len(r.Waypoints)})
	return s.BeginRecompute(id)
}

// MoveWaypoint relocates a waypoint once a drag completes and starts a recompute.
func (s *RouteStore) MoveWaypoint(id int64, index int, p domain.GeoPoint) (RecomputeRequest, error) {
	if !p.Valid() {
		return RecomputeRequest{}, fmt.Errorf("waypoint (%f, %f): %w", p.Lat, p.Lon, domain.ErrInvalidCoordinate)
	}
	r, err := s.Get(id)
	if err != nil {
		return RecomputeRequest{}, err
	}
	if index < 0 || index >= len(r.Waypoints) {
		return RecomputeRequest{}, fmt.Errorf("route %d waypoint %d: %w", id, index, domain.ErrWaypointNotFound)
	}
	r.Waypoints[index].GeoPoint = p
	return s.BeginRecompute(id)
}

// RemoveWaypoint deletes a waypoint and starts a recompute.
func (s *RouteStore) RemoveWaypoint(id int64, index int) (RecomputeRequest, error) {
	r, err := s.Get(id)
	if err != nil {
		return RecomputeRequest{}, err
	}
	if index < 0 || index >= len(r.Waypoints) {
		return RecomputeRequest{}, fmt.Errorf("route %d waypoint %d: %w", id, index, domain.ErrWaypointNotFound)
	}
	r.Waypoints = append(r.Waypoints[:index], r.Waypoints[index+1:]...)
	r.Reindex()
	return s.BeginRecompute(id)
}

// BeginRecompute bumps the route generation and snapshots its waypoints.
// With fewer than two waypoints the geometry is cleared right away and the
// returned request is not routable.
func (s *RouteStore) BeginRecompute(id int64) (RecomputeRequest, error) {
	r, err := s.Get(id)
	if err != nil {
		return RecomputeRequest{}, err
	}
	r.Generation++

	wps := make([]domain.Waypoint, len(r.Waypoints))
	copy(wps, r.Waypoints)
	req := RecomputeRequest{RouteID: id, Generation: r.Generation, Waypoints: wps}

	if !req.Routable() {
		r.SetGeometry(domain.EmptyGeometry())
		r.IsPlaying = false
	}
	return req, nil
}

// ApplyRecompute installs the geometry carried by res if it is still current.
// Routing failures of any kind become a straight line through the
// request's waypoints.
func (s *RouteStore) ApplyRecompute(res RecomputeResult) (*domain.Route, ApplyOutcome) {
	r, ok := s.routes[res.RouteID]
	if !ok || r.Generation != res.Generation {
		return nil, OutcomeStale
	}

	if res.Err == nil {
		if g, err := domain.FromRoutingService(res.Path); err == nil {
			r.SetGeometry(g)
			return r, OutcomeRouted
		}
	}
	r.SetGeometry(domain.FromWaypointsDirect(res.Waypoints))
	return r, OutcomeFallback
}

// RequestDelete marks a route for deletion pending confirmation.
func (s *RouteStore) RequestDelete(id int64) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	s.pendingDelete = id
	return nil
}

// PendingDelete returns the route awaiting confirmation, if any.
func (s *RouteStore) PendingDelete() (int64, bool) {
	return s.pendingDelete, s.pendingDelete != 0
}

// ConfirmDelete removes the pending route and returns its ID.
func (s *RouteStore) ConfirmDelete() (int64, error) {
	id := s.pendingDelete
	if id == 0 {
		return 0, domain.ErrNoPendingDelete
	}
	s.pendingDelete = 0
	if _, ok := s.routes[id]; !ok {
		return 0, fmt.Errorf("route %d: %w", id, domain.ErrRouteNotFound)
	}
	delete(s.routes, id)
	return id, nil
}

// CancelDelete clears the pending marker without deleting anything.
func (s *RouteStore) CancelDelete() {
	s.pendingDelete = 0
}
