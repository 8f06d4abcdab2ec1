package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OCAP2/placefinder/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Positions travel through the system as WGS84 degrees (core.LatLng).
// Spatial columns are stored as 3857 WKB so SQLite and Postgres scan them the same way.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// KeyPrecision is the number of decimal places kept in a GeoKey (about 1 cm).
const KeyPrecision = 7

var keyScale = math.Pow10(KeyPrecision)

// LatLngFromString parses a string in the format "lat,lng".
func LatLngFromString(coords string) (core.LatLng, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.LatLng{}, ErrInvalidCoordinates
	}
	p := core.LatLng{Lat: lat, Lng: lng}
	if err := Validate(p); err != nil {
		return core.LatLng{}, err
	}
	return p, nil
}

// Validate checks that p is a finite coordinate within WGS84 bounds.
func Validate(p core.LatLng) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return ErrInvalidCoordinates
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// KeyOf returns the geographic identity of p.
func KeyOf(p core.LatLng) core.GeoKey {
	return core.GeoKey(fmt.Sprintf("%.*f,%.*f", KeyPrecision, round(p.Lat), KeyPrecision, round(p.Lng)))
}

// SamePlace reports whether a and b share a geographic identity.
func SamePlace(a, b core.LatLng) bool {
	return KeyOf(a) == KeyOf(b)
}

func round(v float64) float64 {
	r := math.Round(v*keyScale) / keyScale
	if r == 0 {
		// collapse -0 so both sides of the equator/meridian share a key
		r = 0
	}
	return r
}

// Coords3857From4326 creates a web-mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	var x, y float64
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ = f(longitude, latitude, 0)
	if math.IsNaN(x) || math.IsNaN(y) {
		return geom.NewEmptyPoint(geom.DimXY), ErrInvalidCoordinates
	}
	point = geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: x, Y: y},
			Type: geom.DimXY,
		},
	)
	return point, nil
}

// PointFromLatLng converts p into a 3857 point suitable for a spatial column.
func PointFromLatLng(p core.LatLng) (geom.Point, error) {
	if err := Validate(p); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	return Coords3857From4326(p.Lng, p.Lat)
}
