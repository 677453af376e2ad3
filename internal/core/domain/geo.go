package domain

import "github.com/samirrijal/tripsim/internal/pkg/geospatial"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point lies within WGS 84 bounds.
func (p GeoPoint) Valid() bool {
	return geospatial.ValidCoordinate(p.Lat, p.Lon)
}

// Distance returns the great-circle distance in meters between two points.
func Distance(a, b GeoPoint) float64 {
	return geospatial.Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// CumulativeDistances returns the running distance from points[0] to each point.
func CumulativeDistances(points []GeoPoint) []float64 {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.Lat, p.Lon}
	}
	return geospatial.CumulativeDistances(coords)
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundsOf returns the bounding box of points. ok is false for an empty slice.
func BoundsOf(points []GeoPoint) (b Bounds, ok bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinLat: points[0].Lat, MinLon: points[0].Lon, MaxLat: points[0].Lat, MaxLon: points[0].Lon}
	for _, p := range points[1:] {
		b.MinLat = min(b.MinLat, p.Lat)
		b.MinLon = min(b.MinLon, p.Lon)
		b.MaxLat = max(b.MaxLat, p.Lat)
		b.MaxLon = max(b.MaxLon, p.Lon)
	}
	return b, true
}
