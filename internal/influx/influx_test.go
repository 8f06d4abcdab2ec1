package influx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/reconciler"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestPointFor(t *testing.T) {
	tests := []struct {
		name  string
		event reconciler.Event
		want  string
	}{
		{
			name:  "search completed",
			event: reconciler.SearchCompleted{Results: 3, Dropped: 1, Duration: 250 * time.Millisecond, Center: core.LatLng{Lat: 1, Lng: 2}, Radius: 5000},
			want:  "search,outcome=success dropped=1i,duration_ms=250i,lat=1,lng=2,radius=5000,results=3i",
		},
		{
			name:  "search failed",
			event: reconciler.SearchFailed{Err: errors.New("boom"), Duration: time.Second},
			want:  `search,outcome=error duration_ms=1000i,error="boom"`,
		},
		{
			name:  "superseded",
			event: reconciler.SearchDiscarded{Operation: "geocode"},
			want:  "search,operation=geocode,outcome=superseded count=1i",
		},
		{
			name:  "favourite",
			event: reconciler.FavouriteToggled{Added: true, Affected: 2},
			want:  "favourite,action=added affected=2i",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PointFor(tt.event, ts)
			require.NotNil(t, p)
			assert.Equal(t, tt.want+" 1714564800000000000\n", lineProtocol(p))
		})
	}
}

func TestPointFor_Untracked(t *testing.T) {
	assert.Nil(t, PointFor(reconciler.CollectionChanged{}, ts))
}

func TestManager_ConnectDisabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "")
	assert.Error(t, m.Connect(context.Background()))
}

func TestManager_WritePointWithoutWriter(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, "")
	assert.Error(t, m.WritePoint(PointFor(reconciler.FavouriteToggled{}, ts)))
}

func TestManager_BackupFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.lp.gz")
	cfg := config.InfluxConfig{Enabled: true, Protocol: "http", Host: "127.0.0.1", Port: "1", Bucket: "placefinder_usage"}
	m := NewManager(zerolog.Nop(), cfg, path)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	m.Observe(context.Background(), reconciler.FavouriteToggled{Added: false, Affected: 1})
	m.Observe(context.Background(), reconciler.CollectionChanged{})
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(data), "favourite,action=removed affected=1i")
	assert.Equal(t, 1, bytes.Count(data, []byte("\n")))
}
