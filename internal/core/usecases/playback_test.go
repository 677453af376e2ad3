package usecases_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/usecases"
)

// routeOfLength returns a stopped route whose straight-line geometry is
// roughly meters long, heading east along the equator.
func routeOfLength(id int64, meters float64) *domain.Route {
	lonSpan := meters / (6371000.0 * math.Pi / 180)
	r := domain.NewRoute(id, 80, time.Unix(0, 0))
	r.Waypoints = []domain.Waypoint{
		{GeoPoint: domain.GeoPoint{Lat: 0, Lon: 0}, Index: 0},
		{GeoPoint: domain.GeoPoint{Lat: 0, Lon: lonSpan}, Index: 1},
	}
	r.SetGeometry(domain.FromWaypointsDirect(r.Waypoints))
	return r
}

func TestPlaybackEngine_TenTicksAt80(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 1000)
	r.IsPlaying = true

	// 80 km/h is 22.22 m/s, so ten 0.1s ticks cover one second.
	for i := 0; i < 10; i++ {
		e.Tick(r, 0.1)
	}

	if math.Abs(r.TraveledMeters-22.222) > 0.01 {
		t.Fatalf("expected ~22.22m traveled, got %.4f", r.TraveledMeters)
	}
	if !r.IsPlaying {
		t.Fatal("route should still be playing")
	}
}

func TestPlaybackEngine_CompletesAndClamps(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 1000)
	total := r.TotalMeters()
	r.IsPlaying = true

	var ticks int
	var completed bool
	prev := 0.0
	for !completed {
		res := e.Tick(r, 0.1)
		ticks++
		if r.TraveledMeters < prev {
			t.Fatalf("traveled decreased: %.3f -> %.3f", prev, r.TraveledMeters)
		}
		if r.TraveledMeters > total {
			t.Fatalf("traveled %.3f exceeds total %.3f", r.TraveledMeters, total)
		}
		prev = r.TraveledMeters
		completed = res.Completed
		if !completed && !r.IsPlaying {
			t.Fatal("route stopped without completing")
		}
		if ticks > 10000 {
			t.Fatal("route never completed")
		}
	}

	if r.TraveledMeters != total {
		t.Errorf("expected traveled clamped to exactly %.6f, got %.6f", total, r.TraveledMeters)
	}
	if r.IsPlaying {
		t.Error("route should stop on the tick that reaches the end")
	}
	// 1000m in 2.22m steps takes 450 ticks, give or take rounding.
	if ticks < 450 || ticks > 451 {
		t.Errorf("expected about 450 ticks, got %d", ticks)
	}

	if res := e.Tick(r, 0.1); res.Advanced {
		t.Error("stopped route must not advance")
	}
}

func TestPlaybackEngine_SetSpeedClamps(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 1000)
	r.TraveledMeters = 123

	e.SetSpeed(r, 10000)
	if r.SpeedKmh != 700 {
		t.Errorf("expected 700, got %v", r.SpeedKmh)
	}
	e.SetSpeed(r, 1)
	if r.SpeedKmh != 40 {
		t.Errorf("expected 40, got %v", r.SpeedKmh)
	}
	e.SetSpeed(r, 120)
	if r.SpeedKmh != 120 {
		t.Errorf("expected 120, got %v", r.SpeedKmh)
	}
	if r.TraveledMeters != 123 {
		t.Errorf("speed change must not move the route, traveled=%v", r.TraveledMeters)
	}
}

func TestPlaybackEngine_SingleWaypointIsNotPlayable(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := domain.NewRoute(1, 80, time.Unix(0, 0))
	r.Waypoints = []domain.Waypoint{{GeoPoint: domain.GeoPoint{Lat: 1, Lon: 1}}}
	r.SetGeometry(domain.FromWaypointsDirect(r.Waypoints))

	if r.TotalMeters() != 0 {
		t.Fatalf("expected zero total, got %v", r.TotalMeters())
	}
	if _, ok := r.Position(); ok {
		t.Fatal("expected no position")
	}
	if _, ok := r.Geometry.PositionAtDistance(500); ok {
		t.Fatal("expected no position at any distance")
	}

	err := e.TogglePlay(r)
	if !errors.Is(err, domain.ErrNoGeometry) {
		t.Fatalf("expected ErrNoGeometry, got %v", err)
	}
	if r.IsPlaying {
		t.Fatal("toggle must be a no-op")
	}
}

func TestPlaybackEngine_SeekIsIdempotent(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 5000)

	e.Seek(r, 0.3)
	p1, ok := r.Position()
	if !ok {
		t.Fatal("expected a position")
	}
	e.Seek(r, 0.3)
	p2, _ := r.Position()
	if p1 != p2 {
		t.Errorf("seek not idempotent: %+v vs %+v", p1, p2)
	}
	if math.Abs(r.TraveledMeters-0.3*r.TotalMeters()) > 1e-6 {
		t.Errorf("unexpected traveled %v", r.TraveledMeters)
	}

	e.Seek(r, 1.7)
	if r.TraveledMeters != r.TotalMeters() {
		t.Errorf("seek past end should clamp, got %v", r.TraveledMeters)
	}
	e.Seek(r, -1)
	if r.TraveledMeters != 0 {
		t.Errorf("seek before start should clamp, got %v", r.TraveledMeters)
	}
}

func TestPlaybackEngine_ToggleRestartsFinishedRoute(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 1000)
	e.Seek(r, 1)

	if err := e.TogglePlay(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.IsPlaying || r.TraveledMeters != 0 {
		t.Fatalf("expected restart from 0, playing=%v traveled=%v", r.IsPlaying, r.TraveledMeters)
	}
	if err := e.TogglePlay(r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsPlaying {
		t.Fatal("second toggle should pause")
	}
}

func TestPlaybackEngine_PauseAllResumeAll(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	playing := routeOfLength(1, 1000)
	stopped := routeOfLength(2, 1000)
	alsoPlaying := routeOfLength(3, 1000)
	playing.IsPlaying = true
	alsoPlaying.IsPlaying = true
	routes := []*domain.Route{playing, stopped, alsoPlaying}

	paused := e.PauseAll(routes)
	if len(paused) != 2 {
		t.Fatalf("expected 2 paused routes, got %v", paused)
	}
	for _, r := range routes {
		if r.IsPlaying {
			t.Fatalf("route %d still playing after PauseAll", r.ID)
		}
	}

	// A second pause must not forget the first.
	if again := e.PauseAll(routes); len(again) != 0 {
		t.Fatalf("expected nothing to pause, got %v", again)
	}

	resumed := e.ResumeAll(routes)
	if len(resumed) != 2 {
		t.Fatalf("expected 2 resumed routes, got %v", resumed)
	}
	if !playing.IsPlaying || !alsoPlaying.IsPlaying {
		t.Error("previously playing routes should resume")
	}
	if stopped.IsPlaying {
		t.Error("explicitly stopped route must stay stopped")
	}
}

func TestPlaybackEngine_ExplicitToggleAfterPauseIsRespected(t *testing.T) {
	e := usecases.NewPlaybackEngine(usecases.DefaultPlaybackLimits())
	r := routeOfLength(1, 1000)
	r.IsPlaying = true
	routes := []*domain.Route{r}

	e.PauseAll(routes)
	// Play then stop by hand while globally paused.
	_ = e.TogglePlay(r)
	_ = e.TogglePlay(r)

	if resumed := e.ResumeAll(routes); len(resumed) != 0 {
		t.Fatalf("expected no resumed routes, got %v", resumed)
	}
	if r.IsPlaying {
		t.Fatal("route stopped by hand must stay stopped")
	}
}
