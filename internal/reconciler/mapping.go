package reconciler

import (
	"strings"

	"github.com/OCAP2/placefinder/pkg/core"
)

// Placeholders shown when a place record lacks a field.
const (
	UnknownName    = "Unknown place"
	NoDescription  = "No description"
	NoAddress      = "No address"
	NoOpeningHours = "No opening hours information"
)

// MarkerFromPlace maps a provider record to a marker with display defaults.
// The favourite flag is left false.
func MarkerFromPlace(rec core.PlaceRecord) core.Marker {
	m := core.Marker{
		ID:          core.MarkerID(rec.ID),
		Name:        rec.Name,
		Position:    rec.Position,
		Description: strings.Join(nonEmpty(rec.Types), ", "),
		Address:     strings.TrimSpace(rec.Vicinity),
		Hours:       strings.Join(nonEmpty(rec.OpeningHoursText), "\n"),
	}
	if strings.TrimSpace(m.Name) == "" {
		m.Name = UnknownName
	}
	if m.Description == "" {
		m.Description = NoDescription
	}
	if m.Address == "" {
		m.Address = NoAddress
	}
	if m.Hours == "" {
		m.Hours = NoOpeningHours
	}
	return m
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
