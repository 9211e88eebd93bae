package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
)

// MigrationsFS should be set by a migrations package to embed migration files.
// This allows the migrations to be compiled into the binary.
//
// Usage in a migrations package:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing migration files.
// Can be set to "." if files are at the root of the embedded filesystem.
var MigrationsDir = "migrations"

// MigrationRecord describes one migration known to the database or the binary.
type MigrationRecord struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Migrate applies all pending migrations to the database.
// Migrations are applied in version order (oldest first), each in its own
// transaction, and tracked in the goose_db_version table.
//
// Running Migrate on an up-to-date database is a no-op. An empty
// migration set is not an error.
func (db *DB) Migrate(ctx context.Context) error {
	p, err := db.provider()
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return nil
		}
		return err
	}

	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recently applied migration.
//
// WARNING: Rollbacks drop tables. Use with caution, and never
// in production without a backup.
func (db *DB) MigrateDown(ctx context.Context) error {
	p, err := db.provider()
	if err != nil {
		return err
	}

	if _, err := p.Down(ctx); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}
	return nil
}

// MigrationVersion returns the currently applied schema version (0 when empty).
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	p, err := db.provider()
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return 0, nil
		}
		return 0, err
	}

	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// GetMigrationStatus returns applied and pending migrations.
func (db *DB) GetMigrationStatus(ctx context.Context) (applied, pending []MigrationRecord, err error) {
	p, err := db.provider()
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading migration status: %w", err)
	}

	for _, s := range statuses {
		rec := MigrationRecord{
			Version:   s.Source.Version,
			Name:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		}
		if rec.Applied {
			applied = append(applied, rec)
		} else {
			pending = append(pending, rec)
		}
	}
	return applied, pending, nil
}

// provider builds a goose provider for the configured migration set.
func (db *DB) provider() (*goose.Provider, error) {
	if MigrationsFS == nil {
		return nil, goose.ErrNoMigrations
	}

	fsys, err := fs.Sub(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("opening migrations directory %q: %w", MigrationsDir, err)
	}

	dialect := goose.DialectSQLite3
	if db.dialect == DialectPostgres {
		dialect = goose.DialectPostgres
	}

	p, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return nil, goose.ErrNoMigrations
		}
		return nil, fmt.Errorf("creating migration provider: %w", err)
	}
	return p, nil
}
