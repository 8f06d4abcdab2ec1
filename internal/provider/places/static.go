package places

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sort"

	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/pkg/core"
)

//go:embed catalog.json
var defaultCatalog []byte

// Static implements Searcher over a fixed catalog, nearest first.
type Static struct {
	records []core.PlaceRecord
}

// NewStatic creates a searcher over records.
func NewStatic(records []core.PlaceRecord) *Static {
	return &Static{records: records}
}

// LoadStatic reads a JSON array of place records from path. An empty path
// loads the built-in catalog.
func LoadStatic(path string) (*Static, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read place catalog: %w", err)
		}
		data = b
	}

	var records []core.PlaceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse place catalog: %w", err)
	}
	for i, r := range records {
		if err := geo.Validate(r.Position); err != nil {
			return nil, fmt.Errorf("place catalog entry %d (%s): %w", i, r.ID, err)
		}
	}
	return NewStatic(records), nil
}

// SearchNearby yields catalog entries within radius of center.
func (s *Static) SearchNearby(ctx context.Context, center core.LatLng, radius float64) iter.Seq2[core.PlaceRecord, error] {
	if err := geo.Validate(center); err != nil {
		return fail(fmt.Errorf("%w: %w", core.ErrProvider, err))
	}

	type hit struct {
		rec  core.PlaceRecord
		dist float64
	}
	var hits []hit
	for _, r := range s.records {
		if d := geo.Distance(center, r.Position); d <= radius {
			hits = append(hits, hit{r, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	return func(yield func(core.PlaceRecord, error) bool) {
		for _, h := range hits {
			if err := ctx.Err(); err != nil {
				yield(core.PlaceRecord{}, fmt.Errorf("%w: %w", core.ErrProvider, err))
				return
			}
			if !yield(h.rec, nil) {
				return
			}
		}
	}
}
