package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	config "example.com/socialfeed/internal/init"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies pending migrations for the configured driver without
// keeping a connection open.
func Migrate(cfg *config.Config) error {
	switch cfg.StoreDriver {
	case "", "cassandra":
		if err := ensureKeyspace(cfg); err != nil {
			return err
		}
		return runCassandraMigrations(cfg)
	case "postgres":
		return runPostgresMigrations(cfg)
	default:
		return fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

func runCassandraMigrations(cfg *config.Config) error {
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)
	return runMigrations(sourceURL(cfg, "cassandra"), dbURL)
}

func runPostgresMigrations(cfg *config.Config) error {
	return runMigrations(sourceURL(cfg, "postgres"), pgxMigrateURL(cfg.PostgresURL))
}

func sourceURL(cfg *config.Config, driver string) string {
	return fmt.Sprintf("file://%s", filepath.Join(cfg.MigrationsDir, driver))
}

// pgxMigrateURL rewrites a postgres:// DSN to the scheme the pgx/v5 migrate
// driver registers.
func pgxMigrateURL(dsn string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// --- Migration runner ---

func runMigrations(sourceURL, dbURL string) error {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}
