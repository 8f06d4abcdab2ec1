package cache

import (
	"sync"

	"github.com/OCAP2/placefinder/pkg/core"
)

// MarkerCache holds the ordered live marker collection. Every mutation bumps
// the version so observers can tell snapshots apart.
type MarkerCache struct {
	mu      sync.RWMutex
	markers []core.Marker
	index   map[core.MarkerID]int
	version uint64
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		index: make(map[core.MarkerID]int),
	}
}

// Get retrieves a marker by id
func (c *MarkerCache) Get(id core.MarkerID) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return core.Marker{}, false
	}
	return c.markers[i], true
}

// Has reports whether a marker with the given id is present
func (c *MarkerCache) Has(id core.MarkerID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[id]
	return ok
}

// Snapshot returns a copy of the collection in display order
func (c *MarkerCache) Snapshot() []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Marker, len(c.markers))
	copy(out, c.markers)
	return out
}

// Collection returns a copy of the collection together with the version it
// was read at.
func (c *MarkerCache) Collection() ([]core.Marker, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]core.Marker, len(c.markers))
	copy(out, c.markers)
	return out, c.version
}

// Len returns the number of markers
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// Version returns the mutation counter
func (c *MarkerCache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Replace swaps the whole collection. Later markers whose id repeats an
// earlier one are dropped; the number dropped is returned.
func (c *MarkerCache) Replace(markers []core.Marker) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.markers = make([]core.Marker, 0, len(markers))
	c.index = make(map[core.MarkerID]int, len(markers))
	dropped := 0
	for _, m := range markers {
		if _, dup := c.index[m.ID]; dup {
			dropped++
			continue
		}
		c.index[m.ID] = len(c.markers)
		c.markers = append(c.markers, m)
	}
	c.version++
	return dropped
}

// Append adds m at the end of the collection. It returns false and leaves
// the collection unchanged if the id is already present.
func (c *MarkerCache) Append(m core.Marker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.index[m.ID]; dup {
		return false
	}
	c.index[m.ID] = len(c.markers)
	c.markers = append(c.markers, m)
	c.version++
	return true
}

// SetFavourite sets the favourite flag on every marker accepted by match
// and returns how many markers changed.
func (c *MarkerCache) SetFavourite(match func(core.Marker) bool, favourite bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := 0
	for i := range c.markers {
		if match(c.markers[i]) && c.markers[i].IsFavourite != favourite {
			c.markers[i].IsFavourite = favourite
			changed++
		}
	}
	if changed > 0 {
		c.version++
	}
	return changed
}

// Reset clears all markers from the cache
func (c *MarkerCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = nil
	c.index = make(map[core.MarkerID]int)
	c.version++
}
