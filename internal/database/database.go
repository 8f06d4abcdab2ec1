package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var memoryDBCounter atomic.Uint64

func gormConfig() *gorm.Config {
	return &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	}
}

// Open connects to the database selected by cfg.Type.
func Open(cfg config.StorageConfig, log zerolog.Logger) (*gorm.DB, error) {
	switch cfg.Type {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("Using SQLite DB")
		return OpenSQLite(cfg.SQLite.Path)
	case "postgres":
		log.Info().Str("host", cfg.Postgres.Host).Str("database", cfg.Postgres.Database).Msg("Using Postgres DB")
		return OpenPostgres(cfg.Postgres)
	case "mysql":
		log.Info().Str("host", cfg.MySQL.Host).Str("database", cfg.MySQL.Database).Msg("Using MySQL DB")
		return OpenMySQL(cfg.MySQL)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// OpenPostgres returns a connection to a Postgres database.
func OpenPostgres(cfg config.SQLConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenMySQL returns a connection to a MySQL database.
func OpenMySQL(cfg config.SQLConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite returns a connection to a SQLite database.
// If path is empty, uses a private in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA cache_size = -32000;",
		"PRAGMA temp_store = MEMORY;",
	}
	if path == "" {
		dsn = fmt.Sprintf("file:placefinder-%d?mode=memory&cache=shared", memoryDBCounter.Add(1))
		pragmas = []string{
			"PRAGMA user_version = 1;",
			"PRAGMA journal_mode = MEMORY;",
			"PRAGMA synchronous = OFF;",
			"PRAGMA temp_store = MEMORY;",
		}
	}

	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; serialize through one connection so
	// transactions queue instead of failing with SQLITE_BUSY.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}

	return db, nil
}

// Ping validates the connection within timeout.
func Ping(db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DumpMemoryDBToDisk vacuums the database into a disk file.
func DumpMemoryDBToDisk(db *gorm.DB, sqliteFilePath string) error {
	if sqliteFilePath == "" {
		return fmt.Errorf("sqlite file path not set")
	}

	// remove existing file if it exists
	if exists, err := os.Stat(sqliteFilePath); err == nil && exists != nil {
		if err := os.Remove(sqliteFilePath); err != nil {
			return fmt.Errorf("error removing existing DB file: %w", err)
		}
	}

	err := db.Exec("VACUUM INTO 'file:" + sqliteFilePath + "';").Error
	if err != nil {
		return fmt.Errorf("error dumping memory DB to disk: %w", err)
	}

	return nil
}
