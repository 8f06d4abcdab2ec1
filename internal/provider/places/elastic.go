package places

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strconv"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/olivere/elastic/v7"
)

// Document is the shape of a place in the Elasticsearch index. The
// location field must be mapped as geo_point.
type Document struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Location     elastic.GeoPoint `json:"location"`
	Types        []string         `json:"types,omitempty"`
	Vicinity     string           `json:"vicinity,omitempty"`
	OpeningHours []string         `json:"openingHours,omitempty"`
}

// Elastic implements Searcher over an Elasticsearch place index, nearest
// first.
type Elastic struct {
	client *elastic.Client
	index  string
	size   int
	logger *slog.Logger
}

// NewElastic connects to the cluster at cfg.URL.
func NewElastic(cfg config.ElasticConfig, logger *slog.Logger) (*Elastic, error) {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:9200"
	}
	client, err := elastic.NewClient(
		elastic.SetURL(cfg.URL),
		elastic.SetSniff(false),
		elastic.SetHealthcheck(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create elastic client: %w", err)
	}
	return NewElasticWithClient(client, cfg.Index, cfg.Size, logger), nil
}

// NewElasticWithClient wraps an existing client.
func NewElasticWithClient(client *elastic.Client, index string, size int, logger *slog.Logger) *Elastic {
	if index == "" {
		index = "places"
	}
	if size <= 0 {
		size = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Elastic{client: client, index: index, size: size, logger: logger}
}

// SearchNearby yields indexed places within radius of center, paging by
// the configured size until the index runs out.
func (e *Elastic) SearchNearby(ctx context.Context, center core.LatLng, radius float64) iter.Seq2[core.PlaceRecord, error] {
	query := elastic.NewBoolQuery().Filter(
		elastic.NewGeoDistanceQuery("location").
			Lat(center.Lat).
			Lon(center.Lng).
			Distance(strconv.FormatFloat(radius, 'f', -1, 64) + "m"),
	)
	sort := elastic.NewGeoDistanceSort("location").
		Point(center.Lat, center.Lng).
		Asc().
		Unit("m").
		DistanceType("arc").
		IgnoreUnmapped(true)

	return func(yield func(core.PlaceRecord, error) bool) {
		for from := 0; ; from += e.size {
			result, err := e.client.Search().
				Index(e.index).
				Query(query).
				SortBy(sort).
				From(from).
				Size(e.size).
				Do(ctx)
			if err != nil {
				yield(core.PlaceRecord{}, fmt.Errorf("%w: elastic search: %w", core.ErrProvider, err))
				return
			}

			hits := result.Hits.Hits
			for _, hit := range hits {
				var doc Document
				if err := json.Unmarshal(hit.Source, &doc); err != nil {
					e.logger.Warn("Skipping malformed place document", "id", hit.Id, "error", err)
					continue
				}
				if doc.ID == "" {
					doc.ID = hit.Id
				}
				if !yield(doc.record(), nil) {
					return
				}
			}
			if len(hits) < e.size {
				return
			}
		}
	}
}

func (d Document) record() core.PlaceRecord {
	return core.PlaceRecord{
		ID:               d.ID,
		Name:             d.Name,
		Position:         core.LatLng{Lat: d.Location.Lat, Lng: d.Location.Lon},
		Types:            d.Types,
		Vicinity:         d.Vicinity,
		OpeningHoursText: d.OpeningHours,
	}
}
