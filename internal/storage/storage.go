// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/OCAP2/placefinder/pkg/core"
)

// Backend is the interface all favourites storage implementations must satisfy.
// Entries are partitioned by identity key and kept in insertion order.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Load returns the entries stored for key. Unknown keys yield an empty slice.
	Load(ctx context.Context, key string) ([]core.FavouriteEntry, error)

	// Update runs fn over the entries stored for key and persists its result
	// as one atomic step. Concurrent updates of the same key never interleave.
	// If fn returns an error nothing is written and that error is returned.
	Update(ctx context.Context, key string, fn func([]core.FavouriteEntry) ([]core.FavouriteEntry, error)) error

	// Keys lists every identity key that has at least one entry.
	Keys(ctx context.Context) ([]string, error)
}
