package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := NewMetricsForTesting()
	ctx := context.Background()

	m.Observe(ctx, reconciler.SearchCompleted{Results: 12, Dropped: 2, Duration: 300 * time.Millisecond})
	m.Observe(ctx, reconciler.SearchFailed{Err: errors.New("boom"), Duration: time.Second})
	m.Observe(ctx, reconciler.SearchDiscarded{Operation: "search"})
	m.Observe(ctx, reconciler.SearchDiscarded{Operation: "geocode"})
	m.Observe(ctx, reconciler.MarkerAppended{Query: "Church A"})
	m.Observe(ctx, reconciler.FavouriteToggled{Added: true})
	m.Observe(ctx, reconciler.FavouriteToggled{Added: true})
	m.Observe(ctx, reconciler.FavouriteToggled{Added: false})
	m.Observe(ctx, reconciler.CollectionChanged{Markers: make([]core.Marker, 7)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Searches.WithLabelValues("superseded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DuplicateIDs))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Geocodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FavouriteToggles.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FavouriteToggles.WithLabelValues("removed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.LiveMarkers))
}

func TestMetrics_Registerable(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewPedanticRegistry()

	assert.NotPanics(t, func() {
		reg.MustRegister(m.Searches, m.SearchDuration, m.SearchResults, m.DuplicateIDs, m.Geocodes, m.FavouriteToggles, m.LiveMarkers)
	})
}

func TestMetrics_LiveMarkersIgnoresOlderVersions(t *testing.T) {
	m := NewMetricsForTesting()
	ctx := context.Background()

	m.Observe(ctx, reconciler.CollectionChanged{Version: 4, Markers: make([]core.Marker, 3)})
	m.Observe(ctx, reconciler.CollectionChanged{Version: 2, Markers: make([]core.Marker, 9)})
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveMarkers))

	m.Observe(ctx, reconciler.CollectionChanged{Version: 5, Markers: nil})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LiveMarkers))
}
