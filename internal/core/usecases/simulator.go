package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/ports"
	"github.com/samirrijal/tripsim/internal/pkg/geospatial"
	"github.com/samirrijal/tripsim/internal/pkg/metrics"
)

// SimulatorConfig tunes the playback loop.
type SimulatorConfig struct {
	TickInterval       time.Duration
	NoticeTTL          time.Duration
	CameraOffsetMeters float64
	Limits             PlaybackLimits
}

// DefaultSimulatorConfig ticks every 100ms with notices visible for 4s.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		TickInterval:       100 * time.Millisecond,
		NoticeTTL:          4 * time.Second,
		CameraOffsetMeters: 300,
		Limits:             DefaultPlaybackLimits(),
	}
}

// SimulatorStats counts how routing results were handled.
type SimulatorStats struct {
	Routes   int    `json:"routes"`
	Playing  int    `json:"playing"`
	Routed   uint64 `json:"routed"`
	Fallback uint64 `json:"fallback"`
	Stale    uint64 `json:"stale"`
	Ticks    uint64 `json:"ticks"`
}

// Simulator owns the route store and playback engine. A single goroutine
// (Run) executes every mutation, applies routing results and advances
// playback on a fixed tick, so core state is never touched concurrently.
type Simulator struct {
	store  *RouteStore
	engine *PlaybackEngine
	router ports.RoutingClient
	events ports.EventPublisher
	cfg    SimulatorConfig
	now    func() time.Time

	cmds    chan func(ctx context.Context)
	results chan RecomputeResult
	stats   SimulatorStats
}

// NewSimulator wires a simulator. events may be nil.
func NewSimulator(router ports.RoutingClient, events ports.EventPublisher, cfg SimulatorConfig) *Simulator {
	if events == nil {
		events = NopPublisher{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultSimulatorConfig().TickInterval
	}
	return &Simulator{
		store:   NewRouteStore(cfg.Limits.DefaultSpeedKmh),
		engine:  NewPlaybackEngine(cfg.Limits),
		router:  router,
		events:  events,
		cfg:     cfg,
		now:     time.Now,
		cmds:    make(chan func(ctx context.Context)),
		results: make(chan RecomputeResult, 16),
	}
}

// Run drives the simulator until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	dt := s.cfg.TickInterval.Seconds()

	slog.Info("simulator started", "tick_interval", s.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("simulator stopped")
			return nil
		case fn := <-s.cmds:
			fn(ctx)
		case res := <-s.results:
			s.applyResult(ctx, res)
		case <-ticker.C:
			s.tick(ctx, dt)
		}
	}
}

// do runs fn on the simulator goroutine and waits for it.
func (s *Simulator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	select {
	case s.cmds <- func(loopCtx context.Context) { done <- fn(loopCtx) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoute adds an empty route.
func (s *Simulator) CreateRoute(ctx context.Context) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r := s.store.CreateRoute()
		snap = s.snapshot(r, true)
		s.publishAdded(ctx, snap)
		s.notify(ctx, domain.NoticeInfo, r.ID, "New route created. Add points to start.")
		return nil
	})
	return snap, err
}

// EnsureActiveRoute returns the route new waypoints go to, creating one when
// there are none.
func (s *Simulator) EnsureActiveRoute(ctx context.Context) (domain.RouteSnapshot, bool, error) {
	var (
		snap    domain.RouteSnapshot
		created bool
	)
	err := s.do(ctx, func(ctx context.Context) error {
		var r *domain.Route
		r, created = s.ensureActive(ctx)
		snap = s.snapshot(r, true)
		return nil
	})
	return snap, created, err
}

// Routes lists every route without geometry.
func (s *Simulator) Routes(ctx context.Context) ([]domain.RouteSnapshot, error) {
	var out []domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		routes := s.store.List()
		out = make([]domain.RouteSnapshot, len(routes))
		for i, r := range routes {
			out[i] = s.snapshot(r, false)
		}
		return nil
	})
	return out, err
}

// Route returns one route with its geometry.
func (s *Simulator) Route(ctx context.Context, id int64) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r, err := s.store.Get(id)
		if err != nil {
			return err
		}
		snap = s.snapshot(r, true)
		return nil
	})
	return snap, err
}

// AddWaypoint appends a waypoint to a route and recomputes its geometry.
func (s *Simulator) AddWaypoint(ctx context.Context, id int64, p domain.GeoPoint, name string) (domain.RouteSnapshot, error) {
	return s.mutate(ctx, id, func() (RecomputeRequest, error) {
		return s.store.AddWaypoint(id, p, name)
	})
}

// AddWaypointToActive appends a waypoint to the active route, creating the
// route first if none exists.
func (s *Simulator) AddWaypointToActive(ctx context.Context, p domain.GeoPoint, name string) (domain.RouteSnapshot, error) {
	if !p.Valid() {
		return domain.RouteSnapshot{}, fmt.Errorf("waypoint (%f, %f): %w", p.Lat, p.Lon, domain.ErrInvalidCoordinate)
	}
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r, _ := s.ensureActive(ctx)
		req, err := s.store.AddWaypoint(r.ID, p, name)
		if err != nil {
			return err
		}
		snap = s.afterMutation(ctx, r, req)
		return nil
	})
	return snap, err
}

// AddPlace appends a geocoded place to the active route as a named waypoint.
func (s *Simulator) AddPlace(ctx context.Context, place domain.Place) (domain.RouteSnapshot, error) {
	return s.AddWaypointToActive(ctx, place.Point(), place.DisplayName)
}

// MoveWaypoint relocates a waypoint after a drag and recomputes the geometry.
func (s *Simulator) MoveWaypoint(ctx context.Context, id int64, index int, p domain.GeoPoint) (domain.RouteSnapshot, error) {
	return s.mutate(ctx, id, func() (RecomputeRequest, error) {
		return s.store.MoveWaypoint(id, index, p)
	})
}

// RemoveWaypoint deletes a waypoint and recomputes the geometry.
func (s *Simulator) RemoveWaypoint(ctx context.Context, id int64, index int) (domain.RouteSnapshot, error) {
	return s.mutate(ctx, id, func() (RecomputeRequest, error) {
		return s.store.RemoveWaypoint(id, index)
	})
}

// TogglePlay starts or pauses a route. Routes without geometry are left
// alone and the user is told why.
func (s *Simulator) TogglePlay(ctx context.Context, id int64) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r, err := s.store.Get(id)
		if err != nil {
			return err
		}
		if err := s.engine.TogglePlay(r); err != nil {
			if errors.Is(err, domain.ErrNoGeometry) {
				s.notify(ctx, domain.NoticeWarn, id, "Add at least 2 points to the route.")
			}
			return err
		}
		snap = s.snapshot(r, false)
		s.publishState(ctx, snap)
		return nil
	})
	return snap, err
}

// Seek moves a route to progress in [0,1] and publishes the new position
// immediately.
func (s *Simulator) Seek(ctx context.Context, id int64, progress float64) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r, err := s.store.Get(id)
		if err != nil {
			return err
		}
		s.engine.Seek(r, progress)
		snap = s.snapshot(r, false)
		s.publishState(ctx, snap)
		return nil
	})
	return snap, err
}

// SetSpeed changes a route speed, clamped to the configured range.
func (s *Simulator) SetSpeed(ctx context.Context, id int64, kmh float64) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		r, err := s.store.Get(id)
		if err != nil {
			return err
		}
		s.engine.SetSpeed(r, kmh)
		snap = s.snapshot(r, false)
		s.publishState(ctx, snap)
		return nil
	})
	return snap, err
}

// RequestDelete marks a route for deletion.
func (s *Simulator) RequestDelete(ctx context.Context, id int64) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.store.RequestDelete(id)
	})
}

// PendingDelete returns the route awaiting confirmation, if any.
func (s *Simulator) PendingDelete(ctx context.Context) (int64, bool, error) {
	var (
		id int64
		ok bool
	)
	err := s.do(ctx, func(ctx context.Context) error {
		id, ok = s.store.PendingDelete()
		return nil
	})
	return id, ok, err
}

// ConfirmDelete deletes the pending route. Routing results still in flight
// for it are discarded when they arrive.
func (s *Simulator) ConfirmDelete(ctx context.Context) (int64, error) {
	var id int64
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.store.ConfirmDelete()
		if err != nil {
			return err
		}
		s.engine.Forget(id)
		if err := s.events.PublishRouteRemoved(ctx, id); err != nil {
			s.publishFailed(domain.EventRouteRemoved, id, err)
		}
		s.notify(ctx, domain.NoticeInfo, id, "Route deleted.")
		return nil
	})
	return id, err
}

// CancelDelete clears the pending deletion.
func (s *Simulator) CancelDelete(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		s.store.CancelDelete()
		return nil
	})
}

// PauseAll stops every playing route, remembering which were playing.
func (s *Simulator) PauseAll(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.do(ctx, func(ctx context.Context) error {
		ids = s.engine.PauseAll(s.store.List())
		s.publishStates(ctx, ids)
		return nil
	})
	return ids, err
}

// ResumeAll restarts the routes stopped by PauseAll.
func (s *Simulator) ResumeAll(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.do(ctx, func(ctx context.Context) error {
		ids = s.engine.ResumeAll(s.store.List())
		s.publishStates(ctx, ids)
		return nil
	})
	return ids, err
}

// Stats reports routing outcome counters.
func (s *Simulator) Stats(ctx context.Context) (SimulatorStats, error) {
	var st SimulatorStats
	err := s.do(ctx, func(ctx context.Context) error {
		st = s.stats
		st.Routes = s.store.Len()
		for _, r := range s.store.List() {
			if r.IsPlaying {
				st.Playing++
			}
		}
		return nil
	})
	return st, err
}

// Limits returns the speed bounds in effect.
func (s *Simulator) Limits() PlaybackLimits {
	return s.engine.Limits()
}

func (s *Simulator) ensureActive(ctx context.Context) (*domain.Route, bool) {
	r, created := s.store.EnsureActiveRoute()
	if created {
		s.publishAdded(ctx, s.snapshot(r, true))
	}
	return r, created
}

func (s *Simulator) mutate(ctx context.Context, id int64, change func() (RecomputeRequest, error)) (domain.RouteSnapshot, error) {
	var snap domain.RouteSnapshot
	err := s.do(ctx, func(ctx context.Context) error {
		req, err := change()
		if err != nil {
			return err
		}
		r, err := s.store.Get(id)
		if err != nil {
			return err
		}
		snap = s.afterMutation(ctx, r, req)
		return nil
	})
	return snap, err
}

// afterMutation publishes the edited route and dispatches routing when the
// route has enough waypoints.
func (s *Simulator) afterMutation(ctx context.Context, r *domain.Route, req RecomputeRequest) domain.RouteSnapshot {
	if !req.Routable() {
		snap := s.snapshot(r, true)
		s.publishGeometry(ctx, snap)
		s.publishState(ctx, snap)
		return snap
	}
	snap := s.snapshot(r, false)
	s.publishState(ctx, snap)
	s.dispatch(ctx, req)
	return snap
}

// dispatch calls the routing service off the loop. The call is never
// cancelled on supersede; its result is dropped on arrival instead.
func (s *Simulator) dispatch(ctx context.Context, req RecomputeRequest) {
	go func() {
		start := time.Now()
		path, err := s.router.Route(ctx, req.Points())
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RoutingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

		select {
		case s.results <- RecomputeResult{RecomputeRequest: req, Path: path, Err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Simulator) applyResult(ctx context.Context, res RecomputeResult) {
	r, outcome := s.store.ApplyRecompute(res)
	metrics.RoutingResults.WithLabelValues(outcome.String()).Inc()

	switch outcome {
	case OutcomeStale:
		s.stats.Stale++
		slog.Debug("discarding stale routing result", "route_id", res.RouteID, "generation", res.Generation)
		return
	case OutcomeRouted:
		s.stats.Routed++
		s.notify(ctx, domain.NoticeInfo, r.ID, fmt.Sprintf("Route: %.1f km", r.TotalMeters()/1000))
	case OutcomeFallback:
		s.stats.Fallback++
		slog.Warn("routing failed, using straight line",
			"route_id", r.ID, "generation", res.Generation, "error", res.Err)
		s.notify(ctx, domain.NoticeWarn, r.ID, "Routing failed. Using a straight line.")
	}

	snap := s.snapshot(r, true)
	s.publishGeometry(ctx, snap)
	s.publishState(ctx, snap)
}

func (s *Simulator) tick(ctx context.Context, dt float64) {
	start := time.Now()
	s.stats.Ticks++

	playing := 0
	routes := s.store.List()
	for _, r := range routes {
		res := s.engine.Tick(r, dt)
		if res.Advanced {
			s.publishState(ctx, s.snapshot(r, false))
		}
		if res.Completed {
			metrics.TripsCompleted.Inc()
			if err := s.events.PublishTripCompleted(ctx, s.snapshot(r, false)); err != nil {
				s.publishFailed(domain.EventTripCompleted, r.ID, err)
			}
			s.notify(ctx, domain.NoticeInfo, r.ID, "Trip completed!")
		}
		if r.IsPlaying {
			playing++
		}
	}

	metrics.ActiveRoutes.Set(float64(len(routes)))
	metrics.PlayingRoutes.Set(float64(playing))
	metrics.TickDuration.Observe(time.Since(start).Seconds())
}

func (s *Simulator) snapshot(r *domain.Route, withGeometry bool) domain.RouteSnapshot {
	snap := r.Snapshot(withGeometry)
	if snap.Position != nil && s.cfg.CameraOffsetMeters > 0 {
		lat, lon := geospatial.CameraOffset(snap.Position.Lat, snap.Position.Lon, s.cfg.CameraOffsetMeters)
		snap.Camera = &domain.GeoPoint{Lat: lat, Lon: lon}
	}
	return snap
}

func (s *Simulator) notify(ctx context.Context, level domain.NoticeLevel, routeID int64, msg string) {
	metrics.NoticesEmitted.WithLabelValues(string(level)).Inc()
	n := domain.NewNotice(level, routeID, msg, s.now(), s.cfg.NoticeTTL)
	if err := s.events.PublishNotice(ctx, n); err != nil {
		s.publishFailed(domain.EventNotice, routeID, err)
	}
}

func (s *Simulator) publishState(ctx context.Context, snap domain.RouteSnapshot) {
	if err := s.events.PublishRouteState(ctx, snap); err != nil {
		s.publishFailed(domain.EventRouteState, snap.ID, err)
	}
}

func (s *Simulator) publishStates(ctx context.Context, ids []int64) {
	for _, id := range ids {
		if r, err := s.store.Get(id); err == nil {
			s.publishState(ctx, s.snapshot(r, false))
		}
	}
}

func (s *Simulator) publishGeometry(ctx context.Context, snap domain.RouteSnapshot) {
	if err := s.events.PublishRouteGeometry(ctx, snap); err != nil {
		s.publishFailed(domain.EventRouteGeometry, snap.ID, err)
	}
}

func (s *Simulator) publishAdded(ctx context.Context, snap domain.RouteSnapshot) {
	if err := s.events.PublishRouteAdded(ctx, snap); err != nil {
		s.publishFailed(domain.EventRouteAdded, snap.ID, err)
	}
}

func (s *Simulator) publishFailed(typ domain.EventType, routeID int64, err error) {
	slog.Warn("publish event failed", "type", typ, "route_id", routeID, "error", err)
}

// NopPublisher drops every event. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishRouteState(context.Context, domain.RouteSnapshot) error    { return nil }
func (NopPublisher) PublishRouteGeometry(context.Context, domain.RouteSnapshot) error { return nil }
func (NopPublisher) PublishRouteAdded(context.Context, domain.RouteSnapshot) error    { return nil }
func (NopPublisher) PublishRouteRemoved(context.Context, int64) error                 { return nil }
func (NopPublisher) PublishTripCompleted(context.Context, domain.RouteSnapshot) error { return nil }
func (NopPublisher) PublishNotice(context.Context, domain.Notice) error               { return nil }
