package database

import (
	"fmt"
	"log"
	"time"

	"eve-market-hand/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps one per-market SQLite file.
type Store struct {
	db   *gorm.DB
	path string
}

// Initialize opens (creating if needed) the market database at path and
// ensures the schema exists. WAL mode lets chart generators and dashboards
// read while a fetch cycle is writing; incremental auto-vacuum makes freed
// pages reclaimable in bounded chunks later.
func Initialize(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open market database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite: one writer at a time, so keep the pool small
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	// Takes full effect on fresh files; existing databases pick it up after
	// their next full vacuum, same as before.
	if err := db.Exec("PRAGMA auto_vacuum = INCREMENTAL;").Error; err != nil {
		return nil, fmt.Errorf("failed to enable incremental vacuum: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.InitSchema(); err != nil {
		return nil, err
	}

	log.Printf("[Database] %s initialized (WAL mode enabled)", path)
	return s, nil
}

// InitSchema creates the market_orders table if it is missing. Re-running
// against an initialized database is a no-op and never touches existing rows.
func (s *Store) InitSchema() error {
	if err := s.db.AutoMigrate(&models.MarketOrder{}); err != nil {
		return fmt.Errorf("failed to migrate market_orders schema: %w", err)
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying gorm handle for read-only consumers.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
