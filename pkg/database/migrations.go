package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// migrationsTable is the bookkeeping table golang-migrate keeps its
// version in, namespaced alongside the other engine_* metadata tables.
const migrationsTable = "engine_schema_migrations"

// RunMigrations applies pending engine metadata migrations from dir.
// Only the engine_* metadata tables are migrated here; dataset, derived
// and registry tables are provisioned dynamically at runtime and never
// appear in migration files. Safe to call repeatedly.
func RunMigrations(db *sql.DB, dir string, logger *zap.Logger) error {
	log := logger.Named("migrations")

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to load migrations from %q: %w", dir, err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil || dbErr != nil {
			log.Warn("Failed to close migrator",
				zap.NamedError("source", srcErr),
				zap.NamedError("database", dbErr))
		}
	}()

	before, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration version %d is dirty, manual repair required", before)
	}

	switch err := m.Up(); err {
	case nil:
	case migrate.ErrNoChange:
		log.Info("Engine metadata schema is up to date", zap.Uint("version", before))
		return nil
	default:
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	after, _, _ := m.Version()
	log.Info("Applied engine metadata migrations",
		zap.Uint("from", before),
		zap.Uint("to", after))
	return nil
}
