// Package geocode resolves free-text locations to coordinates.
package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
)

// Geocoder resolves text to a single coordinate. A query without a match
// fails with core.ErrGeocodeNotFound; transport failures wrap core.ErrProvider.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (core.LatLng, error)
}

// New builds the geocoder selected by cfg.Geocoder, wrapped in a result
// cache when cfg.GeocodeCache is positive.
func New(cfg config.ProviderConfig, logger *slog.Logger) (Geocoder, error) {
	var g Geocoder
	switch cfg.Geocoder {
	case "nominatim", "":
		g = NewNominatim(cfg.Nominatim, cfg.Timeout, logger)
	case "mapbox":
		if cfg.Mapbox.Token == "" {
			return nil, fmt.Errorf("provider.mapbox.token is required")
		}
		g = NewMapbox(cfg.Mapbox.Token, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported geocoder: %s", cfg.Geocoder)
	}

	if cfg.GeocodeCache > 0 {
		g = NewCached(g, cfg.GeocodeCache)
	}
	return g, nil
}
