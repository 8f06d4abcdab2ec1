// Package favourites keeps each identity's favourite places on top of a
// storage.Backend. Entries are keyed by geographic identity, so two markers
// at the same rounded position share one favourite.
package favourites

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/internal/storage"
	"github.com/OCAP2/placefinder/pkg/core"
)

// Store serializes read-modify-write cycles per identity and delegates
// atomicity across processes to the backend.
type Store struct {
	backend storage.Backend
	log     *slog.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Store over an initialized backend.
func New(backend storage.Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		log:     logger,
		locks:   make(map[string]*keyLock),
	}
}

// lock acquires the mutex for key and returns its release func. Entries are
// dropped from the map once nobody holds or waits on them.
func (s *Store) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Get returns the favourites of id in insertion order. A nil identity has
// no favourites.
func (s *Store) Get(ctx context.Context, id *core.Identity) ([]core.FavouriteEntry, error) {
	if id == nil {
		return []core.FavouriteEntry{}, nil
	}
	entries, err := s.backend.Load(ctx, id.Key())
	if err != nil {
		return nil, fmt.Errorf("load favourites: %w", err)
	}
	if entries == nil {
		entries = []core.FavouriteEntry{}
	}
	return entries, nil
}

// Keys returns the set of GeoKeys favourited by id.
func (s *Store) Keys(ctx context.Context, id *core.Identity) (map[core.GeoKey]struct{}, error) {
	entries, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := make(map[core.GeoKey]struct{}, len(entries))
	for _, e := range entries {
		keys[geo.KeyOf(e.Position)] = struct{}{}
	}
	return keys, nil
}

// Contains reports whether id has a favourite at key.
func (s *Store) Contains(ctx context.Context, id *core.Identity, key core.GeoKey) (bool, error) {
	keys, err := s.Keys(ctx, id)
	if err != nil {
		return false, err
	}
	_, ok := keys[key]
	return ok, nil
}

// Add stores entry for id. An existing favourite at the same place is
// replaced where it stands.
func (s *Store) Add(ctx context.Context, id *core.Identity, entry core.FavouriteEntry) error {
	if id == nil {
		return core.ErrNotAuthenticated
	}
	entry.IsFavourite = true
	key := geo.KeyOf(entry.Position)
	return s.update(ctx, id, func(cur []core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		if i := indexOf(cur, key); i >= 0 {
			cur[i] = entry
			return cur, nil
		}
		return append(cur, entry), nil
	})
}

// Remove deletes the favourite at key. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, id *core.Identity, key core.GeoKey) error {
	if id == nil {
		return core.ErrNotAuthenticated
	}
	return s.update(ctx, id, func(cur []core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		return removeKey(cur, key), nil
	})
}

// Toggle removes the favourite at entry's place if present and adds entry
// otherwise, in a single critical section. It reports whether entry was added.
func (s *Store) Toggle(ctx context.Context, id *core.Identity, entry core.FavouriteEntry) (bool, error) {
	if id == nil {
		return false, core.ErrNotAuthenticated
	}
	entry.IsFavourite = true
	key := geo.KeyOf(entry.Position)

	var added bool
	err := s.update(ctx, id, func(cur []core.FavouriteEntry) ([]core.FavouriteEntry, error) {
		if indexOf(cur, key) >= 0 {
			added = false
			return removeKey(cur, key), nil
		}
		added = true
		return append(cur, entry), nil
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (s *Store) update(ctx context.Context, id *core.Identity, fn func([]core.FavouriteEntry) ([]core.FavouriteEntry, error)) error {
	key := id.Key()
	unlock := s.lock(key)
	defer unlock()

	if err := s.backend.Update(ctx, key, fn); err != nil {
		s.log.Error("Favourites update failed", "identity", key, "error", err)
		return fmt.Errorf("update favourites: %w", err)
	}
	return nil
}

func indexOf(entries []core.FavouriteEntry, key core.GeoKey) int {
	for i, e := range entries {
		if geo.KeyOf(e.Position) == key {
			return i
		}
	}
	return -1
}

func removeKey(entries []core.FavouriteEntry, key core.GeoKey) []core.FavouriteEntry {
	out := entries[:0]
	for _, e := range entries {
		if geo.KeyOf(e.Position) != key {
			out = append(out, e)
		}
	}
	return out
}
