package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what changed.
type EventType string

const (
	EventRouteAdded    EventType = "route.added"
	EventRouteRemoved  EventType = "route.removed"
	EventRouteState    EventType = "route.state"
	EventRouteGeometry EventType = "route.geometry"
	EventTripCompleted EventType = "trip.completed"
	EventNotice        EventType = "notice"
)

// Event is the envelope delivered to renderers.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	RouteID int64     `json:"route_id,omitempty"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh ID.
func NewEvent(typ EventType, routeID int64, payload any, now time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    typ,
		RouteID: routeID,
		At:      now,
		Payload: payload,
	}
}

// NoticeLevel is the severity of a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo NoticeLevel = "info"
	NoticeWarn NoticeLevel = "warn"
)

// Notice is a transient status message shown to the user until ExpiresAt.
type Notice struct {
	ID        string      `json:"id"`
	Level     NoticeLevel `json:"level"`
	Message   string      `json:"message"`
	RouteID   int64       `json:"route_id,omitempty"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// NewNotice builds a notice that expires after ttl.
func NewNotice(level NoticeLevel, routeID int64, msg string, now time.Time, ttl time.Duration) Notice {
	return Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		RouteID:   routeID,
		ExpiresAt: now.Add(ttl),
	}
}
