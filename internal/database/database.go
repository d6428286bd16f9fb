package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entities"
)

var defaultCategories = []string{
	"Fiction",
	"Non-fiction",
	"Science",
	"History",
	"Biography",
	"Children",
	"Reference",
}

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the configured store, migrates the schema and seeds the
// default categories.
func NewDatabase(cfg config.Database) (*Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Warn
	if cfg.Verbose {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.seedCategories(); err != nil {
		return nil, fmt.Errorf("failed to seed categories: %w", err)
	}

	log.Printf("Database initialized successfully (%s)", cfg.Driver)

	return database, nil
}

// NewSQLiteDatabase is a shorthand for NewDatabase with the SQLite driver.
func NewSQLiteDatabase(path string) (*Database, error) {
	return NewDatabase(config.Database{Driver: config.DriverSQLite, Path: path})
}

// SQLiteDSN returns the connection string used for SQLite files.
// Transactions begin IMMEDIATE so that two writers never both hold a read
// snapshot they later try to upgrade; the busy timeout makes the loser wait
// instead of failing with SQLITE_BUSY.
func SQLiteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_journal=WAL&_timeout=5000&_busy_timeout=5000&_txlock=immediate"
}

func dialectorFor(cfg config.Database) (gorm.Dialector, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		if cfg.Path == "" {
			return nil, errors.New("database path is not set")
		}
		return sqlite.Open(SQLiteDSN(cfg.Path)), nil
	case config.DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.New("database DSN is not set")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Migrate registers the book/category join model and auto-migrates all
// entities. Tests use it directly on throwaway databases.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&entities.Book{}, "Categories", &entities.BookCategory{}); err != nil {
		return fmt.Errorf("setup book_categories join table: %w", err)
	}

	return db.AutoMigrate(
		&entities.User{},
		&entities.Author{},
		&entities.Publisher{},
		&entities.Category{},
		&entities.Book{},
		&entities.BookCategory{},
		&entities.Loan{},
		&entities.Fine{},
		&entities.AuditEvent{},
	)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity of the underlying connection pool.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) seedCategories() error {
	for _, name := range defaultCategories {
		var existing entities.Category
		result := d.DB.Where("name = ?", name).First(&existing)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			if err := d.DB.Create(&entities.Category{Name: name}).Error; err != nil {
				return fmt.Errorf("failed to create category %s: %w", name, err)
			}
			log.Printf("Created category: %s", name)
		} else if result.Error != nil {
			return result.Error
		}
	}
	return nil
}
