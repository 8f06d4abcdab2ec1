package observability

import (
	"context"
	"sync"

	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "placefinder"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// marker reconciler. It implements reconciler.Observer.
type Metrics struct {
	Searches       *prometheus.CounterVec // labels: outcome={success,error,superseded}
	SearchDuration prometheus.Histogram
	SearchResults  prometheus.Histogram
	DuplicateIDs   prometheus.Counter
	Geocodes       prometheus.Counter

	FavouriteToggles *prometheus.CounterVec // labels: action={added,removed}
	LiveMarkers      prometheus.Gauge

	// collection version behind LiveMarkers
	mu      sync.Mutex
	version uint64
}

// NewMetrics creates and registers all reconciler metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Searches,
		m.SearchDuration,
		m.SearchResults,
		m.DuplicateIDs,
		m.Geocodes,
		m.FavouriteToggles,
		m.LiveMarkers,
	)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Nearby searches by outcome.",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of a nearby search including all result pages.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		SearchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of markers shown after a nearby search.",
			Buckets:   []float64{0, 1, 5, 10, 20, 40, 60},
		}),
		DuplicateIDs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_place_ids_total",
			Help:      "Place records dropped because their id repeated an earlier one.",
		}),
		Geocodes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocoded_markers_total",
			Help:      "Markers appended from a geocoded location.",
		}),
		FavouriteToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "favourite_toggles_total",
			Help:      "Favourite toggles by resulting action.",
		}, []string{"action"}),
		LiveMarkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_markers",
			Help:      "Markers currently in the live collection.",
		}),
	}
}

// Observe records e.
func (m *Metrics) Observe(_ context.Context, e reconciler.Event) {
	switch ev := e.(type) {
	case reconciler.SearchCompleted:
		m.Searches.WithLabelValues("success").Inc()
		m.SearchDuration.Observe(ev.Duration.Seconds())
		m.SearchResults.Observe(float64(ev.Results))
		m.DuplicateIDs.Add(float64(ev.Dropped))
	case reconciler.SearchFailed:
		m.Searches.WithLabelValues("error").Inc()
		m.SearchDuration.Observe(ev.Duration.Seconds())
	case reconciler.SearchDiscarded:
		if ev.Operation == "search" {
			m.Searches.WithLabelValues("superseded").Inc()
		}
	case reconciler.MarkerAppended:
		m.Geocodes.Inc()
	case reconciler.FavouriteToggled:
		m.FavouriteToggles.WithLabelValues(action(ev.Added)).Inc()
	case reconciler.CollectionChanged:
		m.setLiveMarkers(ev)
	}
}

// setLiveMarkers ignores changes older than the one already reflected,
// since observers may receive them out of order.
func (m *Metrics) setLiveMarkers(ev reconciler.CollectionChanged) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev.Version < m.version {
		return
	}
	m.version = ev.Version
	m.LiveMarkers.Set(float64(len(ev.Markers)))
}

func action(added bool) string {
	if added {
		return "added"
	}
	return "removed"
}
