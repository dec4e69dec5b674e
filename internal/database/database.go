// Package database keeps edumate state in SQLite: the LLM settings and
// preset choice of each owner, the summary history, the tutor chat and the
// memories the tutor answers from. The schema lives in embedded migrations
// that are applied on open.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // Required by the library implementation.
)

// Summaries and chat turns are written from background jobs while the HTTP
// API reads them, so writers wait for the lock instead of failing.
const dsnParams = "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"

type Database struct {
	db  *sql.DB
	log *slog.Logger
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// New opens the edumate database at dbPath and brings its schema up to date.
func New(ctx context.Context, dbPath string, log *slog.Logger) (*Database, error) {
	dbFile, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open DB file: %w", err)
	}

	if err = migrateSchema(ctx, dbFile, dbPath, log); err != nil {
		return nil, errors.Join(err, dbFile.Close())
	}

	return &Database{db: dbFile, log: log}, nil
}

func migrateSchema(ctx context.Context, dbFile *sql.DB, dbPath string, log *slog.Logger) error {
	driver, err := sqlite3.WithInstance(dbFile, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrations, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", migrations, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply schema migrations: %w", upErr)
	}

	fields := []any{"dbPath", dbPath}

	schemaVersion, dirty, err := m.Version()
	switch {
	case err == nil:
		fields = append(fields, "schemaVersion", schemaVersion, "dirty", dirty)
	case !errors.Is(err, migrate.ErrNilVersion):
		log.WarnContext(ctx, "Failed to read schema version",
			"error", err,
			"dbPath", dbPath)
	}

	if upErr != nil {
		log.InfoContext(ctx, "Schema is up to date", fields...)
	} else {
		log.InfoContext(ctx, "Schema is migrated", fields...)
	}

	return nil
}

// Close releases the connection pool. Background jobs must be stopped first.
func (d *Database) Close() error {
	return d.db.Close()
}
