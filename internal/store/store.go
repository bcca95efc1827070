package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the user and project directory, backed by a relational database.
// It supports embedded SQLite (default, in-memory or file) and PostgreSQL
// via a connection string.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens the directory database and applies migrations. For the sqlite
// driver an empty DSN means a private in-memory database.
func New(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		}
		db, err := sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
		s := &Store{db: db, driver: driver}
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return s, nil

	case DriverPostgres:
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		s := &Store{db: db, driver: driver}
		if err := s.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Driver returns the active storage driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks database reachability, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
