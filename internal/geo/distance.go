package geo

import (
	"math"

	"github.com/OCAP2/placefinder/pkg/core"
)

// EarthRadiusMeters is the mean earth radius used for great-circle distances.
const EarthRadiusMeters = 6371000.0

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b core.LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
