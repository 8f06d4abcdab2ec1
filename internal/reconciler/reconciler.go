// Package reconciler owns the live marker collection. It keeps the
// collection consistent with place-search results for the current search
// center, the signed-in identity's favourites and the user's toggles.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/OCAP2/placefinder/internal/cache"
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/jonboulle/clockwork"
)

// DefaultRadius is the nearby-search radius in meters.
const DefaultRadius = 5000.0

// Geocoder resolves free text to a single coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (core.LatLng, error)
}

// PlaceSearcher lists places within radius meters of center. The sequence
// is finite and may be stopped early.
type PlaceSearcher interface {
	SearchNearby(ctx context.Context, center core.LatLng, radius float64) iter.Seq2[core.PlaceRecord, error]
}

// FavouritesStore is the durable favourites set the reconciler overlays.
type FavouritesStore interface {
	Get(ctx context.Context, id *core.Identity) ([]core.FavouriteEntry, error)
	Keys(ctx context.Context, id *core.Identity) (map[core.GeoKey]struct{}, error)
	Toggle(ctx context.Context, id *core.Identity, entry core.FavouriteEntry) (bool, error)
}

// IdentitySource reports who is signed in; flags are computed for them.
type IdentitySource interface {
	Current() *core.Identity
}

// ToggleResult describes the outcome of ToggleFavourite.
type ToggleResult struct {
	Marker   core.Marker `json:"marker"`
	Added    bool        `json:"added"`
	Affected int         `json:"affected"`
	Message  string      `json:"message"`
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock sets the clock used for synthetic ids and timings.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reconciler) { r.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.log = l }
}

// WithObserver registers an observer for reconciler events.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observers = append(r.observers, o) }
}

// WithIdentitySource sets where the current identity comes from.
func WithIdentitySource(s IdentitySource) Option {
	return func(r *Reconciler) { r.identity = s }
}

// WithRadius overrides DefaultRadius.
func WithRadius(meters float64) Option {
	return func(r *Reconciler) {
		if meters > 0 {
			r.radius = meters
		}
	}
}

// Reconciler serializes every mutation of the live collection. The mutex is
// never held while a geocoder or place provider call is in flight; results
// are applied only if the generation captured before the call still holds.
type Reconciler struct {
	mu         sync.Mutex
	markers    *cache.MarkerCache
	search     core.SearchContext
	generation atomic.Uint64
	lastID     int64

	geocoder  Geocoder
	places    PlaceSearcher
	store     FavouritesStore
	identity  IdentitySource
	observers Observers
	clock     clockwork.Clock
	radius    float64
	log       *slog.Logger
}

// New creates a Reconciler with an empty collection and an idle search.
func New(geocoder Geocoder, places PlaceSearcher, store FavouritesStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		markers:  cache.NewMarkerCache(),
		geocoder: geocoder,
		places:   places,
		store:    store,
		clock:    clockwork.NewRealClock(),
		radius:   DefaultRadius,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.search.Radius = r.radius
	return r
}

// LiveMarkers returns a copy of the collection in display order.
func (r *Reconciler) LiveMarkers() []core.Marker {
	return r.markers.Snapshot()
}

// Snapshot is the live collection as of one version.
type Snapshot struct {
	Version uint64        `json:"version"`
	Markers []core.Marker `json:"markers"`
}

// Snapshot returns the collection and its version from a single read.
func (r *Reconciler) Snapshot() Snapshot {
	markers, version := r.markers.Collection()
	return Snapshot{Version: version, Markers: markers}
}

// SearchState returns a copy of the search context.
func (r *Reconciler) SearchState() core.SearchContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.search
}

// Generation returns the search generation. It changes whenever an
// in-flight result would become stale.
func (r *Reconciler) Generation() uint64 {
	return r.generation.Load()
}

// SetSearchCenter records a new center and marks a search as pending.
// The provider is not called.
func (r *Reconciler) SetSearchCenter(center core.LatLng) {
	r.mu.Lock()
	r.search.Center = center
	r.search.Radius = r.radius
	r.search.Pending = true
	r.generation.Add(1)
	r.mu.Unlock()

	r.log.Debug("Search center set", "lat", center.Lat, "lng", center.Lng)
}

// RunPendingSearch runs the pending nearby search and replaces the whole
// collection with its results. When no search is pending it returns the
// current collection. The pending flag is cleared whatever the outcome.
func (r *Reconciler) RunPendingSearch(ctx context.Context) ([]core.Marker, error) {
	r.mu.Lock()
	if !r.search.Pending {
		r.mu.Unlock()
		return r.markers.Snapshot(), nil
	}
	r.search.Pending = false
	center, radius := r.search.Center, r.search.Radius
	gen := r.generation.Load()
	r.mu.Unlock()

	start := r.clock.Now()
	records, err := r.collect(ctx, center, radius, gen)
	if errors.Is(err, core.ErrSuperseded) {
		r.discarded(ctx, "search", center)
		return nil, err
	}
	if err != nil {
		err = providerError("search nearby", err)
		r.log.Warn("Nearby search failed", "lat", center.Lat, "lng", center.Lng, "error", err)
		r.observers.Observe(ctx, SearchFailed{Center: center, Err: err, Duration: r.clock.Since(start)})
		return nil, err
	}

	markers := make([]core.Marker, 0, len(records))
	for _, rec := range records {
		markers = append(markers, MarkerFromPlace(rec))
	}

	r.mu.Lock()
	if r.generation.Load() != gen {
		r.mu.Unlock()
		r.discarded(ctx, "search", center)
		return nil, core.ErrSuperseded
	}
	if err := r.applyFlags(ctx, markers); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	dropped := r.markers.Replace(markers)
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	if dropped > 0 {
		r.log.Debug("Dropped duplicate place ids", "count", dropped)
	}
	r.observers.Observe(ctx, SearchCompleted{
		Center:   center,
		Radius:   radius,
		Results:  len(snap),
		Dropped:  dropped,
		Duration: r.clock.Since(start),
	})
	r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	return snap, nil
}

// collect drains the provider sequence, stopping as soon as gen is stale.
func (r *Reconciler) collect(ctx context.Context, center core.LatLng, radius float64, gen uint64) ([]core.PlaceRecord, error) {
	var records []core.PlaceRecord
	for rec, err := range r.places.SearchNearby(ctx, center, radius) {
		if r.generation.Load() != gen {
			return nil, core.ErrSuperseded
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if r.generation.Load() != gen {
		return nil, core.ErrSuperseded
	}
	return records, nil
}

// GeocodeAndAppend resolves text, moves the search center there and
// appends a marker named text at the resolved position. A nearby search
// becomes pending. On failure nothing changes.
func (r *Reconciler) GeocodeAndAppend(ctx context.Context, text string) ([]core.Marker, error) {
	gen := r.generation.Load()

	pos, err := r.geocoder.Geocode(ctx, text)
	if err == nil {
		if verr := geo.Validate(pos); verr != nil {
			err = verr
		}
	}
	if err != nil {
		err = providerError("geocode", err)
		r.log.Info("Geocode failed", "query", text, "error", err)
		return nil, err
	}

	r.mu.Lock()
	if r.generation.Load() != gen {
		r.mu.Unlock()
		r.discarded(ctx, "geocode", pos)
		return nil, core.ErrSuperseded
	}

	m := core.Marker{
		ID:          r.nextID(r.markers.Has),
		Name:        text,
		Position:    pos,
		Description: NoDescription,
		Address:     NoAddress,
		Hours:       NoOpeningHours,
	}
	one := []core.Marker{m}
	if err := r.applyFlags(ctx, one); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	m = one[0]
	r.markers.Append(m)
	r.search.Center = pos
	r.search.Radius = r.radius
	r.search.Pending = true
	r.generation.Add(1)
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	r.observers.Observe(ctx, MarkerAppended{Query: text, Marker: m})
	r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	return snap, nil
}

// Clear empties the collection and cancels any pending search. In-flight
// results become stale. Favourites are untouched.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	r.markers.Reset()
	r.search.Pending = false
	r.generation.Add(1)
	version := r.markers.Version()
	r.mu.Unlock()

	r.observers.Observe(context.Background(), CollectionChanged{Markers: []core.Marker{}, Version: version})
}

// Seed replaces the collection with markers, flagged for the current
// identity. Pending state is left alone.
func (r *Reconciler) Seed(ctx context.Context, markers []core.Marker) ([]core.Marker, error) {
	in := make([]core.Marker, len(markers))
	copy(in, markers)

	r.mu.Lock()
	if err := r.applyFlags(ctx, in); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.markers.Replace(in)
	r.generation.Add(1)
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	return snap, nil
}

// ToggleFavourite flips membership of the marker's place in acting's
// favourites. When acting is the identity the collection is shown for, the
// flag on every live marker at that place follows; a toggle on behalf of
// anyone else leaves the live flags alone. Calling it twice restores the
// original state.
func (r *Reconciler) ToggleFavourite(ctx context.Context, id core.MarkerID, acting *core.Identity) (ToggleResult, error) {
	if acting == nil {
		return ToggleResult{}, core.ErrNotAuthenticated
	}

	r.mu.Lock()
	m, ok := r.markers.Get(id)
	if !ok {
		r.mu.Unlock()
		return ToggleResult{}, fmt.Errorf("%w: %s", core.ErrMarkerNotFound, id)
	}

	added, err := r.store.Toggle(ctx, acting, core.NewFavouriteEntry(m))
	if err != nil {
		r.mu.Unlock()
		return ToggleResult{}, err
	}

	key := geo.KeyOf(m.Position)
	affected := 0
	if r.viewing(acting) {
		affected = r.markers.SetFavourite(func(other core.Marker) bool {
			return geo.SamePlace(other.Position, m.Position)
		}, added)
	}
	m.IsFavourite = added
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	res := ToggleResult{
		Marker:   m,
		Added:    added,
		Affected: affected,
		Message:  toggleMessage(m.Name, added),
	}
	r.log.Debug("Favourite toggled", "identity", acting.Key(), "geoKey", key, "added", added, "affected", affected)
	r.observers.Observe(ctx, FavouriteToggled{Identity: acting.Key(), Marker: m, Added: added, Affected: affected})
	if affected > 0 {
		r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	}
	return res, nil
}

func toggleMessage(name string, added bool) string {
	if added {
		return name + " was added to favourites"
	}
	return name + " was removed from favourites"
}

// LoadFavouritesView replaces the collection with acting's favourites.
// Favourites whose ids collide get fresh synthetic ids. Any in-flight
// search result becomes stale and the pending search is dropped.
func (r *Reconciler) LoadFavouritesView(ctx context.Context, acting *core.Identity) ([]core.Marker, error) {
	if acting == nil {
		return nil, core.ErrNotAuthenticated
	}

	r.mu.Lock()
	entries, err := r.store.Get(ctx, acting)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	seen := make(map[core.MarkerID]struct{}, len(entries))
	taken := func(id core.MarkerID) bool {
		_, ok := seen[id]
		return ok
	}
	markers := make([]core.Marker, 0, len(entries))
	for _, e := range entries {
		m := e.Marker
		m.IsFavourite = true
		if m.ID == "" || taken(m.ID) {
			m.ID = r.nextID(taken)
		}
		seen[m.ID] = struct{}{}
		markers = append(markers, m)
	}
	r.markers.Replace(markers)
	r.search.Pending = false
	r.generation.Add(1)
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	return snap, nil
}

// Refresh recomputes every favourite flag for the current identity.
func (r *Reconciler) Refresh(ctx context.Context) ([]core.Marker, error) {
	r.mu.Lock()
	keys, err := r.store.Keys(ctx, r.currentIdentity())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	in := func(m core.Marker) bool {
		_, ok := keys[geo.KeyOf(m.Position)]
		return ok
	}
	changed := r.markers.SetFavourite(in, true)
	changed += r.markers.SetFavourite(func(m core.Marker) bool { return !in(m) }, false)
	snap, version := r.markers.Snapshot(), r.markers.Version()
	r.mu.Unlock()

	if changed > 0 {
		r.observers.Observe(ctx, CollectionChanged{Markers: snap, Version: version})
	}
	return snap, nil
}

// applyFlags sets IsFavourite on markers for the current identity.
// Callers hold r.mu.
func (r *Reconciler) applyFlags(ctx context.Context, markers []core.Marker) error {
	keys, err := r.store.Keys(ctx, r.currentIdentity())
	if err != nil {
		return err
	}
	for i := range markers {
		_, markers[i].IsFavourite = keys[geo.KeyOf(markers[i].Position)]
	}
	return nil
}

// viewing reports whether live flags are computed for id. Without an
// identity source the acting identity is always the viewer.
func (r *Reconciler) viewing(id *core.Identity) bool {
	if r.identity == nil {
		return true
	}
	current := r.identity.Current()
	return current != nil && current.Key() == id.Key()
}

func (r *Reconciler) currentIdentity() *core.Identity {
	if r.identity == nil {
		return nil
	}
	return r.identity.Current()
}

// nextID returns a millisecond timestamp id that is greater than every id
// handed out before and not accepted by taken. Callers hold r.mu.
func (r *Reconciler) nextID(taken func(core.MarkerID) bool) core.MarkerID {
	n := r.clock.Now().UnixMilli()
	if n <= r.lastID {
		n = r.lastID + 1
	}
	for taken(core.MarkerID(strconv.FormatInt(n, 10))) {
		n++
	}
	r.lastID = n
	return core.MarkerID(strconv.FormatInt(n, 10))
}

func (r *Reconciler) discarded(ctx context.Context, op string, center core.LatLng) {
	r.log.Debug("Discarded superseded result", "operation", op)
	r.observers.Observe(ctx, SearchDiscarded{Operation: op, Center: center})
}

// providerError makes sure err matches core.ErrProvider unless it already
// carries a more specific sentinel.
func providerError(op string, err error) error {
	if errors.Is(err, core.ErrProvider) || errors.Is(err, core.ErrGeocodeNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrProvider, err)
}
