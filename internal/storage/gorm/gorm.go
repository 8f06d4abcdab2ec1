// Package gormstorage implements the storage.Backend interface on top of GORM.
// The SQLite, Postgres and MySQL backends all share it; each favourite is a row
// holding a JSON snapshot of the entry plus spatial and lookup columns.
package gormstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/placefinder/internal/database"
	"github.com/OCAP2/placefinder/internal/geo"
	"github.com/OCAP2/placefinder/pkg/core"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend stores favourites in a SQL database.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a GORM backend over an open connection. Close closes db.
func New(db *gorm.DB, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{db: db, logger: logger}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.db
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if err := b.db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	b.logger.Info("Database setup complete", "dialect", b.db.Dialector.Name())
	return nil
}

// Close closes the connection pool.
func (b *Backend) Close() error {
	return database.Close(b.db)
}

// Load returns the entries stored for key in insertion order.
func (b *Backend) Load(ctx context.Context, key string) ([]core.FavouriteEntry, error) {
	var rows []FavouriteRecord
	err := b.db.WithContext(ctx).
		Where("owner_key = ?", key).
		Order("ordinal").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load favourites: %w", err)
	}
	return decodeRows(rows)
}

// Update runs fn inside a transaction holding the owner row lock and
// rewrites the identity's rows from its result.
func (b *Backend) Update(ctx context.Context, key string, fn func([]core.FavouriteEntry) ([]core.FavouriteEntry, error)) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner := FavouriteOwner{OwnerKey: key}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&owner).Error; err != nil {
			return fmt.Errorf("failed to register owner: %w", err)
		}
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_key = ?", key).
			First(&owner).Error; err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}

		var rows []FavouriteRecord
		if err := tx.Where("owner_key = ?", key).Order("ordinal").Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to load favourites: %w", err)
		}
		current, err := decodeRows(rows)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		if err := tx.Where("owner_key = ?", key).Delete(&FavouriteRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear favourites: %w", err)
		}
		if len(next) == 0 {
			return tx.Delete(&FavouriteOwner{}, "owner_key = ?", key).Error
		}

		records := make([]FavouriteRecord, 0, len(next))
		for i, e := range next {
			rec, err := encodeEntry(key, i, e)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to write favourites: %w", err)
		}
		return tx.Model(&FavouriteOwner{}).Where("owner_key = ?", key).Update("updated_at", time.Now()).Error
	})
}

// Keys lists identity keys with stored favourites.
func (b *Backend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := b.db.WithContext(ctx).
		Model(&FavouriteRecord{}).
		Distinct("owner_key").
		Order("owner_key").
		Pluck("owner_key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	return keys, nil
}

func encodeEntry(owner string, ordinal int, e core.FavouriteEntry) (FavouriteRecord, error) {
	snapshot, err := json.Marshal(e)
	if err != nil {
		return FavouriteRecord{}, fmt.Errorf("failed to encode favourite: %w", err)
	}
	point, err := geo.PointFromLatLng(e.Position)
	if err != nil {
		return FavouriteRecord{}, fmt.Errorf("favourite %q: %w", e.ID, err)
	}
	return FavouriteRecord{
		OwnerKey:  owner,
		GeoKey:    string(geo.KeyOf(e.Position)),
		Ordinal:   ordinal,
		MarkerID:  string(e.ID),
		Name:      e.Name,
		Latitude:  e.Position.Lat,
		Longitude: e.Position.Lng,
		Location:  point,
		Snapshot:  datatypes.JSON(snapshot),
	}, nil
}

func decodeRows(rows []FavouriteRecord) ([]core.FavouriteEntry, error) {
	entries := make([]core.FavouriteEntry, 0, len(rows))
	for _, r := range rows {
		var e core.FavouriteEntry
		if err := json.Unmarshal(r.Snapshot, &e); err != nil {
			return nil, fmt.Errorf("failed to decode favourite %d: %w", r.ID, err)
		}
		e.IsFavourite = true
		entries = append(entries, e)
	}
	return entries, nil
}
