package reconciler

import (
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/pkg/core"
)

func geoKey(m core.Marker) core.GeoKey { return geo.KeyOf(m.Position) }
