// pkg/core/position.go
package core

// LatLng is a WGS84 coordinate in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GeoKey is the geographic identity of a place: its position rounded to a
// fixed precision and rendered as "lat,lng". Two markers with equal keys are
// the same place no matter where their ids came from.
type GeoKey string
