package database

import (
	"errors"
	"strings"

	"stockdesk-backend/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sqlitePrefix = "sqlite://"

// Open opens a GORM DB from DSN. A sqlite:// DSN opens a local file database
// for single-node runs; anything else is treated as a Postgres URL.
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer).
func Open(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, sqlitePrefix) {
		return OpenFile(strings.TrimPrefix(dsn, sqlitePrefix))
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// OpenFile opens a sqlite database at path (":memory:" for tests). sqlite
// has a single writer, and each connection to ":memory:" is its own database,
// so the pool is capped at one connection.
func OpenFile(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AutoMigrate creates or updates every collection table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Unit{},
		&models.SaleRequest{},
		&models.SaleRecord{},
		&models.EsimToken{},
		&models.EsimAllocation{},
		&models.EsimMovement{},
		&models.MarketingEvent{},
	)
}

// IsUniqueViolation reports whether err is a unique-index violation from
// either driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
