package reconciler

import (
	"context"
	"time"

	"github.com/OCAP2/placefinder/pkg/core"
)

// Event is something that happened to the live collection or search context.
type Event interface {
	EventName() string
}

// SearchCompleted is emitted when a nearby search replaced the collection.
type SearchCompleted struct {
	Center   core.LatLng
	Radius   float64
	Results  int
	Dropped  int // records whose id repeated an earlier one
	Duration time.Duration
}

// SearchFailed is emitted when the place provider returned an error.
type SearchFailed struct {
	Center   core.LatLng
	Err      error
	Duration time.Duration
}

// SearchDiscarded is emitted when an in-flight geocode or search result was
// dropped because the search context moved on.
type SearchDiscarded struct {
	Operation string
	Center    core.LatLng
}

// MarkerAppended is emitted after a successful geocode.
type MarkerAppended struct {
	Query  string
	Marker core.Marker
}

// FavouriteToggled is emitted after the store accepted a toggle.
type FavouriteToggled struct {
	Identity string
	Marker   core.Marker
	Added    bool
	Affected int
}

// CollectionChanged carries the collection after any mutation.
type CollectionChanged struct {
	Markers []core.Marker
	Version uint64
}

func (SearchCompleted) EventName() string { return "search_completed" }
func (SearchFailed) EventName() string { return "search_failed" }
func (SearchDiscarded) EventName() string { return "search_discarded" }
func (MarkerAppended) EventName() string { return "marker_appended" }
func (FavouriteToggled) EventName() string { return "favourite_toggled" }
func (CollectionChanged) EventName() string { return "collection_changed" }

// Observer receives reconciler events. Observe is called without any
// reconciler lock held and must not block for long.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f(ctx, e).
func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// Observers fans an event out to every observer in order.
type Observers []Observer

// Observe forwards e to each non-nil observer.
func (o Observers) Observe(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, e)
		}
	}
}
