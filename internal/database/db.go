package database

import (
	"fmt"
	"time"

	"robotbakery/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Options configures the database connection
type Options struct {
	Driver          string
	DSN             string
	LogMode         bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// Open initializes the database connection
func Open(opts Options) (*gorm.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "sqlite3"
	}
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.LogMode(opts.LogMode)

	// Configure connection pool
	if opts.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.DB().SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return db, nil
}

// OpenMemory opens a private in-memory SQLite database with its schema,
// used by tests and dry runs
func OpenMemory() (*gorm.DB, error) {
	db, err := Open(Options{Driver: "sqlite3", DSN: ":memory:", MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates and updates every table the bakery uses
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.FlourPack{},
		&models.Ingredient{},
		&models.WaterPipe{},
		&models.Product{},
	).Error; err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Reset removes every stock item and product, keeping the schema
func Reset(db *gorm.DB) error {
	for _, model := range []interface{}{&models.FlourPack{}, &models.Ingredient{}, &models.Product{}} {
		if err := db.Delete(model).Error; err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}
