package storage

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

// migrator is the engine-specific half of the migration runner.
type migrator interface {
	execMigration(ctx context.Context, query string) error
	recordMigration(ctx context.Context, name string) error
	appliedMigrations(ctx context.Context) (map[string]bool, error)
}

// runMigrations executes unapplied .sql files from migrationsFS in lexical order,
// tracking applied files in schema_migrations so each runs at most once.
func runMigrations(ctx context.Context, m migrator, migrationsFS fs.FS, logger *slog.Logger) error {
	if err := m.execMigration(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY
		)
	`); err != nil {
		return fmt.Errorf("storage: create schema_migrations: %w", err)
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("storage: load applied migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("storage: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		name := entry.Name()
		if applied[name] {
			logger.Debug("migration already applied, skipping", "file", name)
			continue
		}

		content, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("storage: read migration %s: %w", name, err)
		}

		logger.Info("running migration", "file", name)
		if err := m.execMigration(ctx, string(content)); err != nil {
			return fmt.Errorf("storage: execute migration %s: %w", name, err)
		}
		if err := m.recordMigration(ctx, name); err != nil {
			return fmt.Errorf("storage: record migration %s: %w", name, err)
		}
	}
	return nil
}
