package domain

import "errors"

var (
	ErrRouteNotFound     = errors.New("route not found")
	ErrWaypointNotFound  = errors.New("waypoint not found")
	ErrNoGeometry        = errors.New("route has no playable geometry")
	ErrNoPendingDelete   = errors.New("no route pending deletion")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrEmptyQuery        = errors.New("search query is empty")
)

// Routing failures. All of them fall back to a straight-line geometry.
var (
	ErrRoutingUnavailable = errors.New("routing service unavailable")
	ErrRoutingNoPath      = errors.New("routing service found no path")
	ErrRoutingMalformed   = errors.New("routing service returned malformed geometry")
)
