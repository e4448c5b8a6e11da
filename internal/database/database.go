// Package database opens the chat store and keeps its schema current.
package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/welldanyogia/webrana-confchat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgreSQL pool limits
const (
	DefaultMaxIdleConns    = 10
	DefaultMaxOpenConns    = 100
	DefaultConnMaxLifetime = time.Hour
	DefaultConnMaxIdleTime = 10 * time.Minute
)

// sqlitePrefix selects the SQLite driver, e.g. "sqlite://./confchat.db"
const sqlitePrefix = "sqlite://"

// Production URL errors
var (
	ErrSQLiteInProduction = errors.New("SQLite cannot be used in production")
	ErrSSLDisabled        = errors.New("SSL mode cannot be disabled in production")
)

// schema lists every table the chat service owns, parents first
var schema = []any{
	&models.User{},
	&models.Paper{},
	&models.ChatMessage{},
	&models.ChatAttachment{},
	&models.ChatReadState{},
}

// Connect opens the database named by databaseURL. URLs starting with
// sqlite:// use SQLite; everything else goes to the PostgreSQL driver.
func Connect(databaseURL string, production bool) (*gorm.DB, error) {
	if production {
		if err := checkProductionURL(databaseURL); err != nil {
			return nil, err
		}
	}

	dialector, isSQLite := dialectorFor(databaseURL)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := tune(db, isSQLite); err != nil {
		return nil, err
	}

	slog.Info("database connected", slog.String("driver", dialector.Name()))
	return db, nil
}

func dialectorFor(databaseURL string) (gorm.Dialector, bool) {
	if dsn, ok := strings.CutPrefix(databaseURL, sqlitePrefix); ok {
		return sqlite.Open(dsn), true
	}
	return postgres.Open(databaseURL), false
}

// checkProductionURL refuses SQLite and explicitly unencrypted PostgreSQL.
// A URL without sslmode keeps the server's default.
func checkProductionURL(databaseURL string) error {
	switch {
	case strings.HasPrefix(databaseURL, sqlitePrefix):
		return ErrSQLiteInProduction
	case strings.Contains(databaseURL, "sslmode=disable"):
		return ErrSSLDisabled
	}
	return nil
}

// tune sizes the pool. SQLite gets a single connection, which also keeps an
// in-memory database alive as long as the pool, and foreign keys so that
// attachments cascade with their message.
func tune(db *gorm.DB, isSQLite bool) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if isSQLite {
		sqlDB.SetMaxOpenConns(1)
		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		return nil
	}

	sqlDB.SetMaxIdleConns(DefaultMaxIdleConns)
	sqlDB.SetMaxOpenConns(DefaultMaxOpenConns)
	sqlDB.SetConnMaxLifetime(DefaultConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(DefaultConnMaxIdleTime)
	return nil
}

// Migrate creates or updates the chat tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(schema...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("database migrated", slog.Int("tables", len(schema)))
	return nil
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
