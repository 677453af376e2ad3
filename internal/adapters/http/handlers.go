package http

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

type waypointRequest struct {
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
	Name string   `json:"name"`
}

func (r waypointRequest) point() (domain.GeoPoint, bool) {
	if r.Lat == nil || r.Lon == nil {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}, true
}

// Request validation failures. Handlers answer these with 400.
var (
	errInvalidBody     = errors.New("invalid request body")
	errMissingLatLon   = errors.New("lat and lon are required")
	errInvalidRouteID  = errors.New("route id must be a positive integer")
	errInvalidWaypoint = errors.New("waypoint index must be a non-negative integer")
)

func parseWaypoint(c *fiber.Ctx) (domain.GeoPoint, string, error) {
	var req waypointRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.GeoPoint{}, "", errInvalidBody
	}
	p, ok := req.point()
	if !ok {
		return domain.GeoPoint{}, "", errMissingLatLon
	}
	return p, strings.TrimSpace(req.Name), nil
}

func routeID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, errInvalidRouteID
	}
	return int64(id), nil
}

func waypointIndex(c *fiber.Ctx) (int, error) {
	idx, err := c.ParamsInt("index")
	if err != nil || idx < 0 {
		return 0, errInvalidWaypoint
	}
	return idx, nil
}

// ListRoutesHandler returns route snapshots without geometry, paginated.
func ListRoutesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		routes, err := deps.Simulator.Routes(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 50)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 50
		}

		total := len(routes)
		page := routes[min(offset, total):min(offset+limit, total)]

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// CreateRouteHandler starts a new empty route.
func CreateRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, err := deps.Simulator.CreateRoute(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	}
}

// ActiveRouteHandler returns the route new waypoints go to, creating it if needed.
func ActiveRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, created, err := deps.Simulator.EnsureActiveRoute(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(fiber.Map{"route": snap, "created": created})
	}
}

// GetRouteHandler returns one route including its geometry.
func GetRouteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.Route(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// AddWaypointHandler appends a waypoint to a route.
func AddWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		p, name, err := parseWaypoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.AddWaypoint(c.UserContext(), id, p, name)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// MoveWaypointHandler relocates a waypoint.
func MoveWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		idx, err := waypointIndex(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		p, _, err := parseWaypoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.MoveWaypoint(c.UserContext(), id, idx, p)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// RemoveWaypointHandler deletes a waypoint.
func RemoveWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		idx, err := waypointIndex(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.RemoveWaypoint(c.UserContext(), id, idx)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// AddActiveWaypointHandler handles a map click: the point goes to the active
// route, which is created on demand.
func AddActiveWaypointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, name, err := parseWaypoint(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.AddWaypointToActive(c.UserContext(), p, name)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// TogglePlayHandler starts or pauses playback.
func TogglePlayHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		snap, err := deps.Simulator.TogglePlay(c.UserContext(), id)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// SeekHandler jumps to a fraction of the route.
func SeekHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		var req struct {
			Progress *float64 `json:"progress"`
		}
		if err := c.BodyParser(&req); err != nil || req.Progress == nil {
			return errBadRequest(c, "progress is required")
		}
		snap, err := deps.Simulator.Seek(c.UserContext(), id, *req.Progress)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// SetSpeedHandler changes playback speed. Values outside the allowed range
// are clamped rather than rejected.
func SetSpeedHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		var req struct {
			Kmh *float64 `json:"kmh"`
		}
		if err := c.BodyParser(&req); err != nil || req.Kmh == nil {
			return errBadRequest(c, "kmh is required")
		}
		snap, err := deps.Simulator.SetSpeed(c.UserContext(), id, *req.Kmh)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

// RequestDeleteHandler marks a route for deletion pending confirmation.
func RequestDeleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := routeID(c)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := deps.Simulator.RequestDelete(c.UserContext(), id); err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"pending_delete": id})
	}
}

// PendingDeleteHandler reports the route awaiting confirmation.
func PendingDeleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok, err := deps.Simulator.PendingDelete(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		if !ok {
			return c.JSON(fiber.Map{"pending_delete": nil})
		}
		return c.JSON(fiber.Map{"pending_delete": id})
	}
}

func ConfirmDeleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := deps.Simulator.ConfirmDelete(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"deleted": id})
	}
}

func CancelDeleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Simulator.CancelDelete(c.UserContext()); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// PauseAllHandler pauses every playing route and remembers which ones.
func PauseAllHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids, err := deps.Simulator.PauseAll(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"paused": nonNil(ids)})
	}
}

// ResumeAllHandler restarts the routes paused by the last pause-all.
func ResumeAllHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ids, err := deps.Simulator.ResumeAll(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"resumed": nonNil(ids)})
	}
}

// StatsHandler exposes simulator counters.
func StatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := deps.Simulator.Stats(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"stats": stats, "limits": deps.Simulator.Limits()})
	}
}

// SearchHandler geocodes a free-text query.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Search == nil {
			return errUnavailable(c, "search not configured")
		}
		query := c.Query("q")
		if strings.TrimSpace(query) == "" {
			return errBadRequest(c, "q query parameter is required")
		}
		if len(query) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}

		places, err := deps.Search.Search(c.UserContext(), query)
		if err != nil {
			return errFromDomain(c, err)
		}
		if places == nil {
			places = []domain.Place{}
		}
		return c.JSON(places)
	}
}

// SelectPlaceHandler adds a chosen search result to the active route.
func SelectPlaceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var place domain.Place
		if err := c.BodyParser(&place); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if !place.Point().Valid() {
			return errBadRequest(c, "place has invalid coordinates")
		}
		snap, err := deps.Simulator.AddPlace(c.UserContext(), place)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(snap)
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
