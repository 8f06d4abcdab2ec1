// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/gofrs/flock"
)

const lockRetry = 10 * time.Millisecond

// Backend keeps favourites in memory and mirrors every change to a JSON file.
// An empty path keeps everything in memory only.
//
// With a path, the file is the source of truth: every call re-reads it under
// an OS lock on "<path>.lock", shared for reads and exclusive for updates,
// so several processes can share one file.
type Backend struct {
	cfg  config.MemoryConfig
	data map[string][]core.FavouriteEntry
	lock *flock.Flock
	mu   sync.Mutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	b := &Backend{
		cfg:  cfg,
		data: make(map[string][]core.FavouriteEntry),
	}
	if cfg.Path != "" {
		b.lock = flock.New(cfg.Path + ".lock")
	}
	return b
}

// Init loads the favourites file if it exists
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sync(context.Background(), false)
}

// Close releases the lock file handle
func (b *Backend) Close() error {
	if b.lock == nil {
		return nil
	}
	return b.lock.Close()
}

// Load returns a copy of the entries stored for key
func (b *Backend) Load(ctx context.Context, key string) ([]core.FavouriteEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.sync(ctx, false); err != nil {
		return nil, err
	}
	return slices.Clone(b.data[key]), nil
}

// Update applies fn to the entries for key and writes the file, all under
// the exclusive file lock. On write failure the in-memory state is rolled
// back.
func (b *Backend) Update(ctx context.Context, key string, fn func([]core.FavouriteEntry) ([]core.FavouriteEntry, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if b.lock == nil {
		_, err := b.apply(key, fn)
		return err
	}

	return b.locked(ctx, true, func() error {
		data, err := readFile(b.cfg.Path, b.compressed())
		if err != nil {
			return err
		}
		b.data = data

		undo, err := b.apply(key, fn)
		if err != nil {
			return err
		}
		if err := writeFile(b.cfg.Path, b.data, b.compressed()); err != nil {
			undo()
			return err
		}
		return nil
	})
}

// Keys lists identity keys with stored favourites, sorted
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.sync(ctx, false); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// apply runs fn on the entries for key and stores the result. The returned
// func restores the previous entries. Callers hold b.mu.
func (b *Backend) apply(key string, fn func([]core.FavouriteEntry) ([]core.FavouriteEntry, error)) (func(), error) {
	prev, existed := b.data[key]
	next, err := fn(slices.Clone(prev))
	if err != nil {
		return nil, err
	}
	if len(next) == 0 {
		delete(b.data, key)
	} else {
		b.data[key] = slices.Clone(next)
	}
	return func() {
		if existed {
			b.data[key] = prev
		} else {
			delete(b.data, key)
		}
	}, nil
}

// sync re-reads the file into b.data. Callers hold b.mu.
func (b *Backend) sync(ctx context.Context, exclusive bool) error {
	if b.lock == nil {
		return nil
	}
	return b.locked(ctx, exclusive, func() error {
		data, err := readFile(b.cfg.Path, b.compressed())
		if err != nil {
			return err
		}
		b.data = data
		return nil
	})
}

// locked runs fn while holding the file lock.
func (b *Backend) locked(ctx context.Context, exclusive bool, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(b.cfg.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var ok bool
	var err error
	if exclusive {
		ok, err = b.lock.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = b.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to lock favourites file: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to lock favourites file %s", b.lock.Path())
	}
	defer b.lock.Unlock() //nolint:errcheck // closing the fd releases it too

	return fn()
}
