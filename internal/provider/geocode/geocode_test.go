package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNominatim(t *testing.T, handler http.HandlerFunc) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewNominatim(config.NominatimConfig{BaseURL: srv.URL, UserAgent: "placefinder-test", RequestsPerSec: 1000}, time.Second, nil)
}

func TestNominatim_Geocode(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Church A", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "placefinder-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `[{"lat":"51.9194","lon":"19.1451","display_name":"Church A"}]`)
	})

	got, err := n.Geocode(context.Background(), "Church A")
	require.NoError(t, err)
	assert.Equal(t, core.LatLng{Lat: 51.9194, Lng: 19.1451}, got)
}

func TestNominatim_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"no results", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `[]`) }, core.ErrGeocodeNotFound},
		{"server error", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }, core.ErrProvider},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `{`) }, core.ErrProvider},
		{"bad coordinate", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `[{"lat":"north","lon":"1"}]`) }, core.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNominatim(t, tt.handler)
			_, err := n.Geocode(context.Background(), "anything")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNominatim_CancelledContext(t *testing.T) {
	n := newNominatim(t, func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, `[]`) })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Geocode(ctx, "anything")
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestMapbox_Geocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Church%20B.json", r.URL.EscapedPath())
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"features":[{"center":[19.9372,50.0614],"place_name":"Church B, Kraków","relevance":0.98}]}`)
	}))
	t.Cleanup(srv.Close)

	m := NewMapbox("tok", time.Second, nil)
	m.baseURL = srv.URL

	got, err := m.Geocode(context.Background(), "Church B")
	require.NoError(t, err)
	assert.Equal(t, core.LatLng{Lat: 50.0614, Lng: 19.9372}, got)
}

func TestMapbox_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"features":[]}`)
	}))
	t.Cleanup(srv.Close)

	m := NewMapbox("tok", time.Second, nil)
	m.baseURL = srv.URL

	_, err := m.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, core.ErrGeocodeNotFound)
}

type countingGeocoder struct {
	calls atomic.Int32
	err   error
}

func (g *countingGeocoder) Geocode(context.Context, string) (core.LatLng, error) {
	g.calls.Add(1)
	if g.err != nil {
		return core.LatLng{}, g.err
	}
	return core.LatLng{Lat: 1, Lng: 2}, nil
}

func TestCached_HitsCache(t *testing.T) {
	inner := &countingGeocoder{}
	c := NewCached(inner, time.Minute)
	ctx := context.Background()

	for _, q := range []string{"Church A", "church a", "  Church   A "} {
		got, err := c.Geocode(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, core.LatLng{Lat: 1, Lng: 2}, got)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	inner := &countingGeocoder{err: core.ErrGeocodeNotFound}
	c := NewCached(inner, time.Minute)
	ctx := context.Background()

	_, err := c.Geocode(ctx, "Atlantis")
	assert.ErrorIs(t, err, core.ErrGeocodeNotFound)
	_, err = c.Geocode(ctx, "Atlantis")
	assert.ErrorIs(t, err, core.ErrGeocodeNotFound)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestNew(t *testing.T) {
	g, err := New(config.ProviderConfig{Geocoder: "nominatim"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Nominatim{}, g)

	g, err = New(config.ProviderConfig{Geocoder: "mapbox", Mapbox: config.MapboxConfig{Token: "t"}, GeocodeCache: time.Hour}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Cached{}, g)

	_, err = New(config.ProviderConfig{Geocoder: "mapbox"}, nil)
	assert.Error(t, err)

	_, err = New(config.ProviderConfig{Geocoder: "carrier-pigeon"}, nil)
	assert.Error(t, err)
}
