package usecases

import (
	"fmt"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

// PlaybackLimits bounds route speeds in km/h.
type PlaybackLimits struct {
	MinSpeedKmh     float64 `json:"min_speed_kmh"`
	MaxSpeedKmh     float64 `json:"max_speed_kmh"`
	DefaultSpeedKmh float64 `json:"default_speed_kmh"`
}

// DefaultPlaybackLimits returns 40 to 700 km/h with new routes at 80 km/h.
func DefaultPlaybackLimits() PlaybackLimits {
	return PlaybackLimits{MinSpeedKmh: 40, MaxSpeedKmh: 700, DefaultSpeedKmh: 80}
}

// TickResult reports what a tick did to a route.
type TickResult struct {
	Advanced  bool
	Completed bool
}

// PlaybackEngine advances routes along their geometry. Each route is either
// Stopped or Playing; a playing route stops on its own when it reaches the end.
type PlaybackEngine struct {
	limits PlaybackLimits
	// paused holds the routes that PauseAll stopped and ResumeAll restarts.
	paused map[int64]struct{}
}

// NewPlaybackEngine creates an engine with the given speed limits.
func NewPlaybackEngine(limits PlaybackLimits) *PlaybackEngine {
	return &PlaybackEngine{limits: limits, paused: make(map[int64]struct{})}
}

// Limits returns the configured speed bounds.
func (e *PlaybackEngine) Limits() PlaybackLimits {
	return e.limits
}

// Tick advances a playing route by dt seconds.
func (e *PlaybackEngine) Tick(r *domain.Route, dt float64) TickResult {
	total := r.TotalMeters()
	if !r.IsPlaying || total <= 0 {
		return TickResult{}
	}

	speedMps := r.SpeedKmh / 3.6
	r.TraveledMeters = min(total, r.TraveledMeters+speedMps*dt)

	res := TickResult{Advanced: true}
	if r.TraveledMeters >= total {
		r.IsPlaying = false
		res.Completed = true
	}
	return res
}

// TogglePlay flips the playing flag. A route without a playable geometry is
// left untouched. Playing a finished route starts it over.
func (e *PlaybackEngine) TogglePlay(r *domain.Route) error {
	if !r.Geometry.Playable() {
		return fmt.Errorf("route %d: %w", r.ID, domain.ErrNoGeometry)
	}
	delete(e.paused, r.ID)

	if !r.IsPlaying && r.TraveledMeters >= r.TotalMeters() {
		r.TraveledMeters = 0
	}
	r.IsPlaying = !r.IsPlaying
	return nil
}

// Seek jumps to progress in [0,1] of the route length.
func (e *PlaybackEngine) Seek(r *domain.Route, progress float64) {
	progress = min(max(progress, 0), 1)
	r.TraveledMeters = r.TotalMeters() * progress
	r.ClampTraveled()
}

// SetSpeed stores kmh clamped into the configured range.
func (e *PlaybackEngine) SetSpeed(r *domain.Route, kmh float64) {
	r.SpeedKmh = e.ClampSpeed(kmh)
}

// ClampSpeed bounds kmh into [MinSpeedKmh, MaxSpeedKmh].
func (e *PlaybackEngine) ClampSpeed(kmh float64) float64 {
	return min(max(kmh, e.limits.MinSpeedKmh), e.limits.MaxSpeedKmh)
}

// PauseAll stops every playing route and remembers which ones were playing.
// Routes remembered by an earlier PauseAll stay remembered.
func (e *PlaybackEngine) PauseAll(routes []*domain.Route) []int64 {
	var stopped []int64
	for _, r := range routes {
		if r.IsPlaying {
			e.paused[r.ID] = struct{}{}
			r.IsPlaying = false
			stopped = append(stopped, r.ID)
		}
	}
	return stopped
}

// ResumeAll restarts only the routes PauseAll stopped. Routes that were
// stopped before the pause stay stopped.
func (e *PlaybackEngine) ResumeAll(routes []*domain.Route) []int64 {
	var resumed []int64
	for _, r := range routes {
		if _, ok := e.paused[r.ID]; !ok {
			continue
		}
		if r.Geometry.Playable() && r.TraveledMeters < r.TotalMeters() {
			r.IsPlaying = true
			resumed = append(resumed, r.ID)
		}
	}
	clear(e.paused)
	return resumed
}

// Forget drops any remembered pause state for a deleted route.
func (e *PlaybackEngine) Forget(id int64) {
	delete(e.paused, id)
}
