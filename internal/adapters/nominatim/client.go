package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/pkg/httpclient"
)

// Config configures the Nominatim client.
type Config struct {
	BaseURL        string
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
	MaxAttempts    int
}

// Client searches places with the Nominatim API.
type Client struct {
	baseURL        string
	userAgent      string
	acceptLanguage string
	http           *httpclient.Client
}

// New creates a Nominatim client.
func New(cfg Config) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
		http:           httpclient.New(cfg.Timeout, cfg.MaxAttempts),
	}
}

// Nominatim returns coordinates as strings.
type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
}

// Search implements ports.Geocoder.
func (c *Client) Search(ctx context.Context, query string, limit int) (_ []domain.Place, err error) {
	ctx, span := otel.Tracer("tripsim/nominatim").Start(ctx, "nominatim.search")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("nominatim.query", query), attribute.Int("nominatim.limit", limit))

	resp, err := c.http.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search", nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("format", "json")
		q.Set("q", query)
		q.Set("limit", strconv.Itoa(limit))
		q.Set("addressdetails", "1")
		req.URL.RawQuery = q.Encode()

		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if c.acceptLanguage != "" {
			req.Header.Set("Accept-Language", c.acceptLanguage)
		}
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("nominatim search: %w", err)
	}
	defer resp.Body.Close()

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode nominatim response: %w", err)
	}

	places := make([]domain.Place, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil || !(domain.GeoPoint{Lat: lat, Lon: lon}).Valid() {
			continue
		}
		places = append(places, domain.Place{
			Lat:         lat,
			Lon:         lon,
			DisplayName: r.DisplayName,
			ShortName:   shortName(r.DisplayName),
			Type:        placeType(r.Type),
		})
	}
	return places, nil
}

func shortName(display string) string {
	name, _, _ := strings.Cut(display, ",")
	return strings.TrimSpace(name)
}

func placeType(t string) string {
	if t == "" {
		return "locality"
	}
	return t
}
