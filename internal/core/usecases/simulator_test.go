package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/ports"
	"github.com/samirrijal/tripsim/internal/core/usecases"
)

// --- Mock RoutingClient ---

type routeReply struct {
	path domain.RoutedPath
	err  error
}

// gatedRouter blocks every call until the test releases it.
type gatedRouter struct {
	mu      sync.Mutex
	calls   []chan routeReply
	started chan int
}

func newGatedRouter() *gatedRouter {
	return &gatedRouter{started: make(chan int, 16)}
}

func (g *gatedRouter) Route(ctx context.Context, _ []domain.GeoPoint) (domain.RoutedPath, error) {
	ch := make(chan routeReply, 1)
	g.mu.Lock()
	idx := len(g.calls)
	g.calls = append(g.calls, ch)
	g.mu.Unlock()
	g.started <- idx

	select {
	case r := <-ch:
		return r.path, r.err
	case <-ctx.Done():
		return domain.RoutedPath{}, ctx.Err()
	}
}

func (g *gatedRouter) release(i int, r routeReply) {
	g.mu.Lock()
	ch := g.calls[i]
	g.mu.Unlock()
	ch <- r
}

type funcRouter func(ctx context.Context, pts []domain.GeoPoint) (domain.RoutedPath, error)

func (f funcRouter) Route(ctx context.Context, pts []domain.GeoPoint) (domain.RoutedPath, error) {
	return f(ctx, pts)
}

// --- Mock EventPublisher ---

type recordingPublisher struct {
	mu      sync.Mutex
	events  []domain.EventType
	notices []domain.Notice
	removed []int64
}

func (p *recordingPublisher) record(t domain.EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
}

func (p *recordingPublisher) PublishRouteState(context.Context, domain.RouteSnapshot) error {
	p.record(domain.EventRouteState)
	return nil
}

func (p *recordingPublisher) PublishRouteGeometry(context.Context, domain.RouteSnapshot) error {
	p.record(domain.EventRouteGeometry)
	return nil
}

func (p *recordingPublisher) PublishRouteAdded(context.Context, domain.RouteSnapshot) error {
	p.record(domain.EventRouteAdded)
	return nil
}

func (p *recordingPublisher) PublishRouteRemoved(_ context.Context, id int64) error {
	p.record(domain.EventRouteRemoved)
	p.mu.Lock()
	p.removed = append(p.removed, id)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) PublishTripCompleted(context.Context, domain.RouteSnapshot) error {
	p.record(domain.EventTripCompleted)
	return nil
}

func (p *recordingPublisher) PublishNotice(_ context.Context, n domain.Notice) error {
	p.record(domain.EventNotice)
	p.mu.Lock()
	p.notices = append(p.notices, n)
	p.mu.Unlock()
	return errors.New("broker down") // failures must not disturb the loop
}

func (p *recordingPublisher) count(t domain.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == t {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) hasNotice(level domain.NoticeLevel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, n := range p.notices {
		if n.Level == level {
			return true
		}
	}
	return false
}

// --- Helpers ---

func startSimulator(t *testing.T, router ports.RoutingClient, pub *recordingPublisher, tick time.Duration) (*usecases.Simulator, context.Context) {
	t.Helper()
	cfg := usecases.DefaultSimulatorConfig()
	cfg.TickInterval = tick
	sim := usecases.NewSimulator(router, pub, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sim.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return sim, ctx
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func stats(t *testing.T, ctx context.Context, sim *usecases.Simulator) usecases.SimulatorStats {
	t.Helper()
	st, err := sim.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	return st
}

// --- Tests ---

func TestSimulator_LatestRoutingResultWins(t *testing.T) {
	router := newGatedRouter()
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, router, pub, time.Hour)

	r, err := sim.CreateRoute(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sim.AddWaypoint(ctx, r.ID, pt(0, 0), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := sim.AddWaypoint(ctx, r.ID, pt(0, 1), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := <-router.started

	// Drag completes while the first request is still in flight.
	if _, err := sim.MoveWaypoint(ctx, r.ID, 1, pt(1, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := <-router.started

	fresh := domain.RoutedPath{Points: []domain.GeoPoint{pt(0, 0), pt(0.5, 0.5), pt(1, 1)}}
	old := domain.RoutedPath{Points: []domain.GeoPoint{pt(0, 0), pt(0, 0.5), pt(0, 1)}}

	router.release(second, routeReply{path: fresh})
	eventually(t, "second result applied", func() bool { return stats(t, ctx, sim).Routed == 1 })

	router.release(first, routeReply{path: old})
	eventually(t, "first result discarded", func() bool { return stats(t, ctx, sim).Stale == 1 })

	got, err := sim.Route(ctx, r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Geometry) != 3 || got.Geometry[1] != pt(0.5, 0.5) {
		t.Fatalf("expected geometry from the second request, got %+v", got.Geometry)
	}
	if got.Source != domain.SourceRouted {
		t.Fatalf("expected routed source, got %s", got.Source)
	}
}

func TestSimulator_FallbackOnRoutingFailure(t *testing.T) {
	router := funcRouter(func(context.Context, []domain.GeoPoint) (domain.RoutedPath, error) {
		return domain.RoutedPath{}, domain.ErrRoutingUnavailable
	})
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, router, pub, time.Hour)

	snap, err := sim.AddWaypointToActive(ctx, pt(0, 0), "Origin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ID != 1 {
		t.Fatalf("expected implicit route 1, got %d", snap.ID)
	}
	if _, err := sim.AddWaypointToActive(ctx, pt(0, 1), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventually(t, "fallback applied", func() bool { return stats(t, ctx, sim).Fallback == 1 })

	got, _ := sim.Route(ctx, 1)
	if got.Source != domain.SourceDirect {
		t.Fatalf("expected direct geometry, got %s", got.Source)
	}
	if d := got.TotalMeters - 111195; d > 1 || d < -1 {
		t.Fatalf("expected ~111195m, got %v", got.TotalMeters)
	}
	if got.Waypoints[0].Name != "Origin" {
		t.Errorf("expected waypoint name to be kept, got %q", got.Waypoints[0].Name)
	}
	if !pub.hasNotice(domain.NoticeWarn) {
		t.Error("expected a warning notice for the fallback")
	}
	if pub.count(domain.EventRouteAdded) != 1 {
		t.Errorf("expected one route.added event, got %d", pub.count(domain.EventRouteAdded))
	}
	if pub.count(domain.EventRouteGeometry) == 0 {
		t.Error("expected a route.geometry event")
	}
}

func TestSimulator_PlaysToCompletion(t *testing.T) {
	router := funcRouter(func(_ context.Context, pts []domain.GeoPoint) (domain.RoutedPath, error) {
		return domain.RoutedPath{Points: pts}, nil
	})
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, router, pub, 5*time.Millisecond)

	r, _ := sim.CreateRoute(ctx)
	sim.AddWaypoint(ctx, r.ID, pt(0, 0), "")
	sim.AddWaypoint(ctx, r.ID, pt(0, 0.0001), "") // about 11m
	eventually(t, "geometry", func() bool { return stats(t, ctx, sim).Routed == 1 })

	if _, err := sim.SetSpeed(ctx, r.ID, 700); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, err := sim.TogglePlay(ctx, r.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snap.IsPlaying {
		t.Fatal("expected route to be playing")
	}

	eventually(t, "trip completed", func() bool { return pub.count(domain.EventTripCompleted) == 1 })

	got, _ := sim.Route(ctx, r.ID)
	if got.IsPlaying || got.TraveledMeters != got.TotalMeters || got.Progress != 1 {
		t.Fatalf("expected finished route, got %+v", got)
	}
	if got.Position == nil || *got.Position != pt(0, 0.0001) {
		t.Fatalf("expected position at the last point, got %+v", got.Position)
	}
	if got.Camera == nil || got.Camera.Lon <= got.Position.Lon {
		t.Fatalf("expected camera east of the position, got %+v", got.Camera)
	}
}

func TestSimulator_TogglePlayWithoutGeometry(t *testing.T) {
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, newGatedRouter(), pub, time.Hour)

	r, _ := sim.CreateRoute(ctx)
	sim.AddWaypoint(ctx, r.ID, pt(10, 10), "")

	_, err := sim.TogglePlay(ctx, r.ID)
	if !errors.Is(err, domain.ErrNoGeometry) {
		t.Fatalf("expected ErrNoGeometry, got %v", err)
	}
	if !pub.hasNotice(domain.NoticeWarn) {
		t.Error("expected a warning notice")
	}
	got, _ := sim.Route(ctx, r.ID)
	if got.IsPlaying || got.Position != nil {
		t.Fatalf("expected idle route without position, got %+v", got)
	}
}

func TestSimulator_SeekPublishesImmediately(t *testing.T) {
	router := funcRouter(func(_ context.Context, pts []domain.GeoPoint) (domain.RoutedPath, error) {
		return domain.RoutedPath{Points: pts}, nil
	})
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, router, pub, time.Hour)

	r, _ := sim.CreateRoute(ctx)
	sim.AddWaypoint(ctx, r.ID, pt(0, 0), "")
	sim.AddWaypoint(ctx, r.ID, pt(0, 1), "")
	eventually(t, "geometry", func() bool { return stats(t, ctx, sim).Routed == 1 })

	before := pub.count(domain.EventRouteState)
	snap, err := sim.Seek(ctx, r.ID, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.count(domain.EventRouteState) != before+1 {
		t.Fatal("seek should publish state without waiting for a tick")
	}
	if snap.Position == nil {
		t.Fatal("expected a position")
	}
	if d := snap.Position.Lon - 0.5; d > 1e-9 || d < -1e-9 {
		t.Fatalf("expected midpoint, got %+v", snap.Position)
	}
}

func TestSimulator_DeleteDiscardsInFlightResult(t *testing.T) {
	router := newGatedRouter()
	pub := &recordingPublisher{}
	sim, ctx := startSimulator(t, router, pub, time.Hour)

	r, _ := sim.CreateRoute(ctx)
	sim.AddWaypoint(ctx, r.ID, pt(0, 0), "")
	sim.AddWaypoint(ctx, r.ID, pt(0, 1), "")
	call := <-router.started

	if err := sim.RequestDelete(ctx, r.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id, ok, _ := sim.PendingDelete(ctx); !ok || id != r.ID {
		t.Fatalf("expected pending delete for %d", r.ID)
	}
	id, err := sim.ConfirmDelete(ctx)
	if err != nil || id != r.ID {
		t.Fatalf("unexpected confirm result %d %v", id, err)
	}

	router.release(call, routeReply{err: domain.ErrRoutingNoPath})
	eventually(t, "result discarded", func() bool { return stats(t, ctx, sim).Stale == 1 })

	if _, err := sim.Route(ctx, r.ID); !errors.Is(err, domain.ErrRouteNotFound) {
		t.Fatalf("expected ErrRouteNotFound, got %v", err)
	}
	if pub.count(domain.EventRouteRemoved) != 1 {
		t.Fatal("expected a route.removed event")
	}
}

func TestSimulator_PauseAllResumeAll(t *testing.T) {
	router := funcRouter(func(_ context.Context, pts []domain.GeoPoint) (domain.RoutedPath, error) {
		return domain.RoutedPath{Points: pts}, nil
	})
	sim, ctx := startSimulator(t, router, &recordingPublisher{}, time.Hour)

	for i := 0; i < 2; i++ {
		r, _ := sim.CreateRoute(ctx)
		sim.AddWaypoint(ctx, r.ID, pt(0, 0), "")
		sim.AddWaypoint(ctx, r.ID, pt(0, 1), "")
	}
	eventually(t, "geometry", func() bool { return stats(t, ctx, sim).Routed == 2 })
	sim.TogglePlay(ctx, 1)

	paused, err := sim.PauseAll(ctx)
	if err != nil || len(paused) != 1 || paused[0] != 1 {
		t.Fatalf("expected [1] paused, got %v %v", paused, err)
	}
	if st := stats(t, ctx, sim); st.Playing != 0 {
		t.Fatalf("expected nothing playing, got %d", st.Playing)
	}

	resumed, err := sim.ResumeAll(ctx)
	if err != nil || len(resumed) != 1 || resumed[0] != 1 {
		t.Fatalf("expected [1] resumed, got %v %v", resumed, err)
	}
	route2, _ := sim.Route(ctx, 2)
	if route2.IsPlaying {
		t.Fatal("route 2 was never playing and must stay stopped")
	}
}

func TestSimulator_CommandsHonorContext(t *testing.T) {
	sim := usecases.NewSimulator(newGatedRouter(), nil, usecases.DefaultSimulatorConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// Run was never started, so the command cannot be delivered.
	if _, err := sim.CreateRoute(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
