package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/balkashynov/qcscan/internal/models"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the database backend
type Options struct {
	Driver string // sqlite or postgres
	Path   string // sqlite file, empty means ~/.qcscan/qcscan.db
	DSN    string // postgres connection string
}

// Open connects to the database described by opts and runs migrations
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch opts.Driver {
	case DriverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a dsn")
		}
		dialector = postgres.Open(opts.DSN)
	case DriverSQLite, "":
		dbPath := opts.Path
		if dbPath == "" {
			p, err := getDatabasePath()
			if err != nil {
				return nil, fmt.Errorf("failed to get database path: %w", err)
			}
			dbPath = p
		}
		// Ensure the directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create qcscan directory: %w", err)
		}
		dialector = sqlite.Open(dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent), // Quiet by default
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Driver != DriverPostgres {
		// sqlite allows a single writer; serialize through one connection
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return conn, nil
}

// OpenMemory opens a private in-memory sqlite database with the schema applied
func OpenMemory() (*gorm.DB, error) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// getDatabasePath returns the path to the SQLite database file
func getDatabasePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".qcscan", "qcscan.db"), nil
}

// Migrate creates/updates the database schema.
//
// The partial unique indexes carry the two consistency rules of the store:
// one active item per (session, code) and one active session per worker.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.WorkerSession{},
		&models.InspectionItem{},
		&models.AuditEvent{},
	); err != nil {
		return err
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_active_session_code
			ON inspection_items (session_id, code) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_worker
			ON worker_sessions (worker_id) WHERE active = true`,
	}
	for _, stmt := range statements {
		if err := conn.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func Close(conn *gorm.DB) error {
	if conn != nil {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
