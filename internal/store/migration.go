package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	logx "github.com/repairfix-assistant/server/pkg/logger"
)

// MigrationManager applies versioned schema migrations once each, in order.
type MigrationManager struct {
	db         *sql.DB
	migrations map[int][]string
}

func NewMigrationManager(db *sql.DB, migrations map[int][]string) *MigrationManager {
	return &MigrationManager{db: db, migrations: migrations}
}

// RunMigrations creates the bookkeeping table and applies pending versions.
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	logx.Info().Msg("Starting database migrations")

	if err := m.createMigrationsTable(ctx); err != nil {
		return err
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	logx.Info().Int("version", current).Msg("Current schema version")

	latest, err := m.applyMigrations(ctx, current)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	logx.Info().Int("version", latest).Msg("Database migrations completed")
	return nil
}

func (m *MigrationManager) createMigrationsTable(ctx context.Context) error {
	const q = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := m.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

// CurrentVersion returns the highest applied version, 0 on a fresh database.
func (m *MigrationManager) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	if err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("query current schema version: %w", err)
	}
	return version, nil
}

func (m *MigrationManager) applyMigrations(ctx context.Context, from int) (int, error) {
	versions := make([]int, 0, len(m.migrations))
	for v := range m.migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	latest := from
	for _, version := range versions {
		if version <= from {
			continue
		}
		logx.Info().Int("version", version).Msg("Applying migration")

		tx, err := m.db.BeginTx(ctx, nil)
		if err != nil {
			return latest, fmt.Errorf("begin migration %d: %w", version, err)
		}
		for _, stmt := range m.migrations[version] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return latest, fmt.Errorf("execute migration %d: %w", version, err)
			}
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO schema_migrations (version) VALUES (%d)", version)); err != nil {
			_ = tx.Rollback()
			return latest, fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return latest, fmt.Errorf("commit migration %d: %w", version, err)
		}
		latest = version
	}
	return latest, nil
}
