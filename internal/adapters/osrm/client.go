package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/pkg/httpclient"
)

// Geometry encodings OSRM can return.
const (
	FormatGeoJSON  = "geojson"
	FormatPolyline = "polyline"
)

// Config configures the OSRM client.
type Config struct {
	BaseURL     string
	Profile     string
	Format      string
	Timeout     time.Duration
	MaxAttempts int
}

// Client calls the OSRM route service.
type Client struct {
	baseURL string
	profile string
	format  string
	http    *httpclient.Client
}

// New creates an OSRM client.
func New(cfg Config) *Client {
	if cfg.Profile == "" {
		cfg.Profile = "driving"
	}
	if cfg.Format == "" {
		cfg.Format = FormatGeoJSON
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: cfg.Profile,
		format:  cfg.Format,
		http:    httpclient.New(cfg.Timeout, cfg.MaxAttempts),
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64         `json:"distance"`
		Geometry json.RawMessage `json:"geometry"`
	} `json:"routes"`
}

// Route implements ports.RoutingClient.
func (c *Client) Route(ctx context.Context, waypoints []domain.GeoPoint) (domain.RoutedPath, error) {
	ctx, span := otel.Tracer("tripsim/osrm").Start(ctx, "osrm.route")
	defer span.End()
	span.SetAttributes(
		attribute.Int("osrm.waypoints", len(waypoints)),
		attribute.String("osrm.profile", c.profile),
	)

	path, err := c.route(ctx, waypoints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.RoutedPath{}, err
	}
	span.SetAttributes(attribute.Int("osrm.points", len(path.Points)))
	return path, nil
}

func (c *Client) route(ctx context.Context, waypoints []domain.GeoPoint) (domain.RoutedPath, error) {
	if len(waypoints) < 2 {
		return domain.RoutedPath{}, fmt.Errorf("%w: need 2 waypoints, got %d", domain.ErrRoutingNoPath, len(waypoints))
	}
	endpoint := c.routeURL(waypoints)

	resp, err := c.http.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return domain.RoutedPath{}, classify(err)
	}
	defer resp.Body.Close()

	var body routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.RoutedPath{}, fmt.Errorf("%w: decode response: %v", domain.ErrRoutingMalformed, err)
	}
	if body.Code != "Ok" {
		return domain.RoutedPath{}, fmt.Errorf("%w: osrm code %s: %s", domain.ErrRoutingNoPath, body.Code, body.Message)
	}
	if len(body.Routes) == 0 {
		return domain.RoutedPath{}, fmt.Errorf("%w: no routes in response", domain.ErrRoutingNoPath)
	}

	first := body.Routes[0]
	points, err := c.decodeGeometry(first.Geometry)
	if err != nil {
		return domain.RoutedPath{}, fmt.Errorf("%w: %v", domain.ErrRoutingMalformed, err)
	}
	if len(points) < 2 {
		return domain.RoutedPath{}, fmt.Errorf("%w: geometry has %d points", domain.ErrRoutingMalformed, len(points))
	}
	return domain.RoutedPath{Points: points, DistanceMeters: first.Distance}, nil
}

// routeURL builds /route/v1/{profile}/{lon,lat;lon,lat...}.
func (c *Client) routeURL(waypoints []domain.GeoPoint) string {
	coords := make([]string, len(waypoints))
	for i, p := range waypoints {
		coords[i] = fmt.Sprintf("%f,%f", p.Lon, p.Lat)
	}
	q := url.Values{}
	q.Set("overview", "full")
	q.Set("geometries", c.format)
	q.Set("steps", "false")
	return fmt.Sprintf("%s/route/v1/%s/%s?%s", c.baseURL, c.profile, strings.Join(coords, ";"), q.Encode())
}

func (c *Client) decodeGeometry(raw json.RawMessage) ([]domain.GeoPoint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("missing geometry")
	}
	if c.format == FormatPolyline {
		return decodePolyline(raw)
	}
	return decodeGeoJSON(raw)
}

func decodeGeoJSON(raw json.RawMessage) ([]domain.GeoPoint, error) {
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	ls, ok := g.Geometry().(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("expected LineString, got %s", g.Type)
	}
	points := make([]domain.GeoPoint, len(ls))
	for i, p := range ls {
		points[i] = domain.GeoPoint{Lat: p.Lat(), Lon: p.Lon()}
	}
	return points, nil
}

func decodePolyline(raw json.RawMessage) ([]domain.GeoPoint, error) {
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("decode polyline string: %w", err)
	}
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	points := make([]domain.GeoPoint, len(coords))
	for i, c := range coords {
		points[i] = domain.GeoPoint{Lat: c[0], Lon: c[1]}
	}
	return points, nil
}

// classify maps transport failures onto routing error kinds. OSRM answers
// unroutable requests with 400 and a code in the body.
func classify(err error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) && se.Code == http.StatusBadRequest {
		var body routeResponse
		if json.Unmarshal([]byte(se.Body), &body) == nil {
			switch body.Code {
			case "NoRoute", "NoSegment", "NoMatch":
				return fmt.Errorf("%w: osrm code %s: %s", domain.ErrRoutingNoPath, body.Code, body.Message)
			}
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrRoutingUnavailable, err)
}
