package geo

import (
	"github.com/OCAP2/placefinder/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// FeatureCollection renders markers as a GeoJSON FeatureCollection with
// 4326 point geometries and the marker attributes as properties.
func FeatureCollection(markers []core.Marker) geom.GeoJSONFeatureCollection {
	fc := make(geom.GeoJSONFeatureCollection, 0, len(markers))
	for _, m := range markers {
		pt := geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: m.Position.Lng, Y: m.Position.Lat},
			Type: geom.DimXY,
		})
		fc = append(fc, geom.GeoJSONFeature{
			ID:       string(m.ID),
			Geometry: pt.AsGeometry(),
			Properties: map[string]interface{}{
				"name":        m.Name,
				"description": m.Description,
				"address":     m.Address,
				"hours":       m.Hours,
				"isFavourite": m.IsFavourite,
				"geoKey":      string(KeyOf(m.Position)),
			},
		})
	}
	return fc
}
