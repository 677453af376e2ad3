package geospatial

import "math"

// EarthRadiusMeters is the mean Earth radius used for every distance in the service.
const EarthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// CumulativeDistances returns the running great-circle distance from the first
// coordinate to each coordinate. coords holds [lat, lon] pairs.
// An empty input yields an empty table, a single point yields [0].
func CumulativeDistances(coords [][2]float64) []float64 {
	out := make([]float64, len(coords))
	for i := 1; i < len(coords); i++ {
		prev, cur := coords[i-1], coords[i]
		out[i] = out[i-1] + Haversine(prev[0], prev[1], cur[0], cur[1])
	}
	return out
}

// Lerp interpolates linearly between two coordinates, componentwise.
func Lerp(lat1, lon1, lat2, lon2, t float64) (lat, lon float64) {
	return lat1 + (lat2-lat1)*t, lon1 + (lon2-lon1)*t
}

// CameraOffset shifts a point east by offsetMeters so a follow camera can keep
// the marker off-center.
func CameraOffset(lat, lon, offsetMeters float64) (float64, float64) {
	cosLat := math.Cos(toRad(lat))
	if cosLat == 0 {
		return lat, lon
	}
	offsetLon := offsetMeters / (EarthRadiusMeters * cosLat) * 180 / math.Pi
	return lat, lon + offsetLon
}

// ValidCoordinate reports whether lat/lon are finite and within WGS84 range.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
