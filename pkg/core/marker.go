// pkg/core/marker.go
package core

// MarkerID identifies a marker within the live collection. Provider place
// ids are used verbatim; synthetic ids are decimal millisecond timestamps.
type MarkerID string

// Marker is a displayable point of interest.
type Marker struct {
	ID          MarkerID `json:"id"`
	Name        string   `json:"name"`
	Position    LatLng   `json:"position"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Hours       string   `json:"hours"`
	IsFavourite bool     `json:"isFavourite"`
}

// FavouriteEntry is the persisted snapshot of a favourited marker.
type FavouriteEntry struct {
	Marker
}

// NewFavouriteEntry snapshots m with the favourite flag set.
func NewFavouriteEntry(m Marker) FavouriteEntry {
	m.IsFavourite = true
	return FavouriteEntry{Marker: m}
}

// PlaceRecord is a single result from a place-search provider.
type PlaceRecord struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Position         LatLng   `json:"position"`
	Types            []string `json:"types,omitempty"`
	Vicinity         string   `json:"vicinity,omitempty"`
	OpeningHoursText []string `json:"openingHoursText,omitempty"`
}

// SearchContext is the user's current search intent.
type SearchContext struct {
	Center  LatLng  `json:"center"`
	Radius  float64 `json:"radius"`
	Pending bool    `json:"pending"`
}
