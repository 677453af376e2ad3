package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/tripsim/internal/core/domain"
)

// waypointField resolves a coordinate of an embedded GeoPoint.
func waypointField(get func(domain.Waypoint) any) *graphql.Field {
	return &graphql.Field{
		Type: graphql.Float,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			switch w := p.Source.(type) {
			case domain.Waypoint:
				return get(w), nil
			case *domain.Waypoint:
				return get(*w), nil
			}
			return nil, nil
		},
	}
}

func snapshotOf(src any) (domain.RouteSnapshot, bool) {
	switch s := src.(type) {
	case domain.RouteSnapshot:
		return s, true
	case *domain.RouteSnapshot:
		return *s, true
	}
	return domain.RouteSnapshot{}, false
}

// buildSchema creates the GraphQL schema wired to the simulator.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	waypointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Waypoint",
		Fields: graphql.Fields{
			"lat":   waypointField(func(w domain.Waypoint) any { return w.Lat }),
			"lon":   waypointField(func(w domain.Waypoint) any { return w.Lon }),
			"name":  &graphql.Field{Type: graphql.String},
			"index": &graphql.Field{Type: graphql.Int},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.Int},
			"waypoints":        &graphql.Field{Type: graphql.NewList(waypointType)},
			"position":         &graphql.Field{Type: geoPointType},
			"camera":           &graphql.Field{Type: geoPointType},
			"total_meters":     &graphql.Field{Type: graphql.Float},
			"traveled_meters":  &graphql.Field{Type: graphql.Float},
			"remaining_meters": &graphql.Field{Type: graphql.Float},
			"progress":         &graphql.Field{Type: graphql.Float},
			"speed_kmh":        &graphql.Field{Type: graphql.Float},
			"is_playing":       &graphql.Field{Type: graphql.Boolean},
			"geometry":         &graphql.Field{Type: graphql.NewList(geoPointType)},
			"source": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					snap, ok := snapshotOf(p.Source)
					if !ok {
						return nil, nil
					}
					return string(snap.Source), nil
				},
			},
		},
	})

	placeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Place",
		Fields: graphql.Fields{
			"lat":          &graphql.Field{Type: graphql.Float},
			"lon":          &graphql.Field{Type: graphql.Float},
			"display_name": &graphql.Field{Type: graphql.String},
			"short_name":   &graphql.Field{Type: graphql.String},
			"type":         &graphql.Field{Type: graphql.String},
		},
	})

	statsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SimulatorStats",
		Fields: graphql.Fields{
			"routes":   &graphql.Field{Type: graphql.Int},
			"playing":  &graphql.Field{Type: graphql.Int},
			"routed":   &graphql.Field{Type: graphql.Int},
			"fallback": &graphql.Field{Type: graphql.Int},
			"stale":    &graphql.Field{Type: graphql.Int},
			"ticks":    &graphql.Field{Type: graphql.Int},
		},
	})

	idArg := &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)}
	sim := deps.Simulator

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"routes": &graphql.Field{
				Type:        graphql.NewList(routeType),
				Description: "List all routes without geometry",
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.Routes(p.Context)
				},
			},
			"route": &graphql.Field{
				Type:        routeType,
				Description: "Get a route with its geometry",
				Args:        graphql.FieldConfigArgument{"id": idArg},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.Route(p.Context, int64(p.Args["id"].(int)))
				},
			},
			"search": &graphql.Field{
				Type:        graphql.NewList(placeType),
				Description: "Geocode a place name",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if deps.Search == nil {
						return nil, errors.New("search not configured")
					}
					return deps.Search.Search(p.Context, p.Args["query"].(string))
				},
			},
			"stats": &graphql.Field{
				Type: statsType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.Stats(p.Context)
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createRoute": &graphql.Field{
				Type: routeType,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.CreateRoute(p.Context)
				},
			},
			"addWaypoint": &graphql.Field{
				Type:        routeType,
				Description: "Append a waypoint; without routeId it goes to the active route",
				Args: graphql.FieldConfigArgument{
					"routeId": &graphql.ArgumentConfig{Type: graphql.Int},
					"lat":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"name":    &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					name, _ := p.Args["name"].(string)
					if id, ok := p.Args["routeId"].(int); ok {
						return sim.AddWaypoint(p.Context, int64(id), pt, name)
					}
					return sim.AddWaypointToActive(p.Context, pt, name)
				},
			},
			"moveWaypoint": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{
					"routeId": idArg,
					"index":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"lat":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					pt := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					return sim.MoveWaypoint(p.Context, int64(p.Args["routeId"].(int)), p.Args["index"].(int), pt)
				},
			},
			"removeWaypoint": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{
					"routeId": idArg,
					"index":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.RemoveWaypoint(p.Context, int64(p.Args["routeId"].(int)), p.Args["index"].(int))
				},
			},
			"togglePlay": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{"id": idArg},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.TogglePlay(p.Context, int64(p.Args["id"].(int)))
				},
			},
			"seek": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{
					"id":       idArg,
					"progress": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.Seek(p.Context, int64(p.Args["id"].(int)), p.Args["progress"].(float64))
				},
			},
			"setSpeed": &graphql.Field{
				Type: routeType,
				Args: graphql.FieldConfigArgument{
					"id":  idArg,
					"kmh": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.SetSpeed(p.Context, int64(p.Args["id"].(int)), p.Args["kmh"].(float64))
				},
			},
			"pauseAll": &graphql.Field{
				Type: graphql.NewList(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.PauseAll(p.Context)
				},
			},
			"resumeAll": &graphql.Field{
				Type: graphql.NewList(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return sim.ResumeAll(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string         `json:"query"`
		OperationName string         `json:"operationName"`
		Variables     map[string]any `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
