// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/internal/database"
	gormstorage "github.com/OCAP2/placefinder/internal/storage/gorm"
	"github.com/OCAP2/placefinder/internal/storage/memory"
	sqlitestorage "github.com/OCAP2/placefinder/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logger *slog.Logger, dbLog zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpPath:     cfg.SQLite.DumpPath,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, logger)
	case "postgres", "mysql":
		db, err := database.Open(cfg, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Type, err)
		}
		if err := database.Ping(db, 5*time.Second); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("failed to validate %s connection: %w", cfg.Type, err)
		}
		return gormstorage.New(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
