package gormstorage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/OCAP2/placefinder/internal/database"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend creates a Backend on a private in-memory SQLite database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	b := New(db, slog.Default())
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func entry(id, name string, lat, lng float64) core.FavouriteEntry {
	return core.NewFavouriteEntry(core.Marker{
		ID:          core.MarkerID(id),
		Name:        name,
		Position:    core.LatLng{Lat: lat, Lng: lng},
		Description: "church",
		Address:     "Main St",
		Hours:       "Mon 9-17",
	})
}

func appendEntry(e core.FavouriteEntry) func([]core.FavouriteEntry) ([]core.FavouriteEntry, error) {
	return func(cur []core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		return append(cur, e), nil
	}
}

func TestInit_CreatesTables(t *testing.T) {
	b := newTestBackend(t)

	assert.True(t, b.DB().Migrator().HasTable(&FavouriteOwner{}))
	assert.True(t, b.DB().Migrator().HasTable(&FavouriteRecord{}))
}

func TestLoad_Unknown(t *testing.T) {
	b := newTestBackend(t)

	got, err := b.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUpdate_RoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("1", "Church A", 51.9194, 19.1451))))
	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("2", "Church B", 50.0614, 19.9372))))

	got, err := b.Load(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entry("1", "Church A", 51.9194, 19.1451), got[0])
	assert.Equal(t, core.MarkerID("2"), got[1].ID)
}

func TestUpdate_StoresSpatialColumns(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Update(context.Background(), "alice", appendEntry(entry("1", "Church A", 51.9194, 19.1451))))

	var rec FavouriteRecord
	require.NoError(t, b.DB().First(&rec).Error)
	assert.Equal(t, "alice", rec.OwnerKey)
	assert.Equal(t, "51.9194000,19.1451000", rec.GeoKey)
	assert.Equal(t, 51.9194, rec.Latitude)
	assert.Equal(t, 19.1451, rec.Longitude)
	assert.False(t, rec.Location.IsEmpty())
}

func TestUpdate_PartitionsByOwner(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("1", "A", 1, 1))))
	require.NoError(t, b.Update(ctx, "bob", appendEntry(entry("1", "A", 1, 1))))

	keys, err := b.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, keys)
}

func TestUpdate_RemoveAllDropsOwner(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("1", "A", 1, 1))))

	require.NoError(t, b.Update(ctx, "alice", func([]core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		return nil, nil
	}))

	got, err := b.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, got)

	var owners int64
	require.NoError(t, b.DB().Model(&FavouriteOwner{}).Count(&owners).Error)
	assert.Zero(t, owners)
}

func TestUpdate_ErrorRollsBack(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("1", "A", 1, 1))))

	boom := errors.New("boom")
	err := b.Update(ctx, "alice", func([]core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := b.Load(ctx, "alice")
	assert.Len(t, got, 1)
}

func TestUpdate_InvalidPositionRollsBack(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Update(ctx, "alice", appendEntry(entry("1", "A", 1, 1))))

	err := b.Update(ctx, "alice", appendEntry(entry("2", "Nowhere", 123, 0)))
	require.Error(t, err)

	got, _ := b.Load(ctx, "alice")
	assert.Len(t, got, 1, "failed update must leave previous rows intact")
}

func TestUpdate_Concurrent(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, b.Update(ctx, "alice", appendEntry(entry("x", "A", float64(n), 0))))
		}(i)
	}
	wg.Wait()

	got, err := b.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
