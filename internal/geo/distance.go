package geo

import "math"

const (
	// EarthRadiusKm is Earth's mean radius used by the haversine formula.
	EarthRadiusKm = 6371.0
	// DefaultMaxDistanceKm is the dispatch proximity limit between an inspector and a property.
	DefaultMaxDistanceKm = 35.0
)

// DistanceKm calculates the great-circle distance between two points on Earth
// in kilometres using the haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// Rounding can push a slightly above 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// WithinKm reports whether two coordinates are at most limitKm apart.
func WithinKm(lat1, lng1, lat2, lng2, limitKm float64) bool {
	return DistanceKm(lat1, lng1, lat2, lng2) <= limitKm
}

// ValidCoordinates reports whether lat/lng are finite and inside the WGS84 ranges.
func ValidCoordinates(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// RoundKm rounds a distance to two decimals for display and payloads.
func RoundKm(km float64) float64 {
	return math.Round(km*100) / 100
}
