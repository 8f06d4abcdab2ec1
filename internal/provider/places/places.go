// Package places lists points of interest around a center. Every provider
// returns a lazy sequence so callers can stop reading early.
package places

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
)

// Searcher lists places within radius meters of center.
type Searcher interface {
	SearchNearby(ctx context.Context, center core.LatLng, radius float64) iter.Seq2[core.PlaceRecord, error]
}

// New builds the searcher selected by cfg.Places.
func New(cfg config.ProviderConfig, logger *slog.Logger) (Searcher, error) {
	switch cfg.Places {
	case "static", "":
		return LoadStatic(cfg.Static.Path)
	case "google":
		if cfg.Google.APIKey == "" {
			return nil, fmt.Errorf("provider.google.apiKey is required")
		}
		return NewGoogle(cfg.Google, cfg.Timeout, logger), nil
	case "elastic":
		return NewElastic(cfg.Elastic, logger)
	default:
		return nil, fmt.Errorf("unsupported places provider: %s", cfg.Places)
	}
}

// fail yields a single error.
func fail(err error) iter.Seq2[core.PlaceRecord, error] {
	return func(yield func(core.PlaceRecord, error) bool) {
		yield(core.PlaceRecord{}, err)
	}
}
