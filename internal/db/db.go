package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ZerkerEOD/krakenwifi/pkg/debug"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

// DB wraps the sql connection pool so repositories can hang shared
// helpers off one type.
type DB struct {
	*sql.DB
}

const (
	connectAttempts = 10
	connectBackoff  = 2 * time.Second
)

// Connect opens the Postgres pool and verifies it with a ping, retrying
// while the database container is still coming up.
func Connect(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	var pingErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingErr = sqlDB.Ping()
		if pingErr == nil {
			debug.Info("Connected to database on attempt %d", attempt)
			return &DB{sqlDB}, nil
		}
		debug.Warning("Database ping failed (attempt %d/%d): %v", attempt, connectAttempts, pingErr)
		time.Sleep(connectBackoff)
	}

	sqlDB.Close()
	return nil, fmt.Errorf("database unreachable after %d attempts: %w", connectAttempts, pingErr)
}

// RunMigrations applies all pending migrations from the given directory.
// A database already at the latest version is not an error.
func (db *DB) RunMigrations(migrationsDir string) error {
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	debug.Info("Database schema at version %d (dirty=%v)", version, dirty)
	return nil
}
