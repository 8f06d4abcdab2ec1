package sqlitestorage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func add(e core.FavouriteEntry) func([]core.FavouriteEntry) ([]core.FavouriteEntry, error) {
	return func(cur []core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		return append(cur, e), nil
	}
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fav.db")
	ctx := context.Background()

	b, err := New(Config{Path: path}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, b.Init())
	e := core.NewFavouriteEntry(core.Marker{ID: "1", Name: "Church A", Position: core.LatLng{Lat: 51.9194, Lng: 19.1451}})
	require.NoError(t, b.Update(ctx, "alice", add(e)))
	require.NoError(t, b.Close())

	reopened, err := New(Config{Path: path}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, reopened.Init())
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e, got[0])
}

func TestBackend_DumpLoop(t *testing.T) {
	dump := filepath.Join(t.TempDir(), "snapshot.db")

	b, err := New(Config{DumpPath: dump, DumpInterval: 20 * time.Millisecond}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dump)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
}

func TestBackend_CloseTwice(t *testing.T) {
	b, err := New(Config{}, slog.Default())
	require.NoError(t, err)
	require.NoError(t, b.Init())

	require.NoError(t, b.Close())
	assert.NotPanics(t, func() { _ = b.Close() })
}
