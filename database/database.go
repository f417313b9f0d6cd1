// Package database opens the configured store and seeds it.
package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"facc/backup"
	"facc/config"
	"facc/store"
)

// Open connects to the relational database named by cfg.
func Open(cfg *config.Config) (*gorm.DB, error) {
	// Setup logging mode for GORM
	level := logger.Warn
	if cfg.IsDevelopment() {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(level),
	}

	switch cfg.StoreDriver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
		)
		log.Printf("🔌 Connecting to PostgreSQL at host=%s port=%s db=%s...", cfg.DBHost, cfg.DBPort, cfg.DBName)

		db, err := gorm.Open(postgres.Open(dsn), gormConfig)
		if err != nil {
			log.Printf("❌ Failed to connect to PostgreSQL: %v", err)
			return nil, err
		}
		log.Println("✅ PostgreSQL connection successful.")
		return db, nil

	case config.DriverSQLite, "sqlite3":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), os.ModePerm); err != nil {
			log.Printf("❌ Failed to create SQLite folder: %v", err)
			return nil, err
		}
		db, err := gorm.Open(sqlite.Open(cfg.DBPath), gormConfig)
		if err != nil {
			log.Printf("❌ Failed to connect to SQLite: %v", err)
			return nil, err
		}
		log.Printf("✅ SQLite connection successful at %s", cfg.DBPath)
		return db, nil
	}

	return nil, fmt.Errorf("unsupported DB driver: %s", cfg.StoreDriver)
}

// OpenStore returns the store selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config, opts ...store.Option) (store.Store, error) {
	if cfg.StoreDriver == config.DriverFile {
		s, err := store.NewFileStore(cfg.DataFile, opts...)
		if err != nil {
			return nil, err
		}
		log.Printf("✅ Using data file %s", cfg.DataFile)
		return s, nil
	}

	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return store.NewSQLStore(ctx, db, opts...)
}

// NewSnapshotter returns the backup snapshotter matching the store's
// substrate.
func NewSnapshotter(s store.Store) backup.Snapshotter {
	if sqlStore, ok := s.(*store.SQLStore); ok {
		return backup.NewSQLSnapshotter(sqlStore)
	}
	return backup.NewDocumentSnapshotter(s)
}
