package geocode

import (
	"context"
	"strings"
	"time"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	go_cache "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
)

// Cached wraps a Geocoder with an in-memory result cache. Only successful
// lookups are cached so a transient "not found" can be retried.
type Cached struct {
	inner Geocoder
	cache *cache.Cache[core.LatLng]
	ttl   time.Duration
}

// NewCached creates a cache decorator around a geocoder.
func NewCached(inner Geocoder, ttl time.Duration) *Cached {
	goCache := gocache.New(ttl, 2*ttl)
	return &Cached{
		inner: inner,
		cache: cache.New[core.LatLng](go_cache.NewGoCache(goCache)),
		ttl:   ttl,
	}
}

// Geocode returns a cached coordinate for text or asks the inner geocoder.
func (c *Cached) Geocode(ctx context.Context, text string) (core.LatLng, error) {
	key := cacheKey(text)
	if p, err := c.cache.Get(ctx, key); err == nil {
		return p, nil
	}

	p, err := c.inner.Geocode(ctx, text)
	if err != nil {
		return p, err
	}
	_ = c.cache.Set(ctx, key, p, store.WithExpiration(c.ttl))
	return p, nil
}

func cacheKey(text string) string {
	return "fwd:" + strings.ToLower(strings.Join(strings.Fields(text), " "))
}
