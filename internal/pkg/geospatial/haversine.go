package geospatial

import (
	"fmt"
	"math"

	"github.com/samirrijal/placefinder/internal/core/domain"
)

// EarthRadiusMeters is the mean Earth radius used by the spherical model.
const EarthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return haversine(lat1, lon1, lat2, lon2, EarthRadiusMeters)
}

// Distance returns the great-circle distance in meters between a and b on a
// sphere of the given radius.
func Distance(a, b domain.Coordinate, radiusMeters float64) float64 {
	return haversine(a.Lat, a.Lng, b.Lat, b.Lng, radiusMeters)
}

func haversine(lat1, lon1, lat2, lon2, radius float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(dLambda/2)*math.Sin(dLambda/2)

	// Rounding can push a a hair past 1 for antipodal points.
	a = math.Min(1, math.Max(0, a))

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return radius * c
}

// FormatDistance renders meters as "12.3 m" or "1.23 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.1f m", meters)
	}
	return fmt.Sprintf("%.2f km", meters/1000)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
