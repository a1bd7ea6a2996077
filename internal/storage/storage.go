// Package storage provides the persistence contract behind the state store and
// three interchangeable engines: embedded SQLite (modernc.org/sqlite),
// Postgres (pgxpool) and an in-process memory table.
//
// The contract is deliberately small: a key/value table for facts and an
// append-only incident log supporting insert, ordered scan, substring filter
// on the summary column and delete-by-id-set.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ManishShirke/aiops-agent/internal/model"
)

// Persistence is implemented by every storage engine.
type Persistence interface {
	// PutFact upserts a fact by key.
	PutFact(ctx context.Context, key, value string) error
	// GetFact returns ErrNotFound when the key is absent.
	GetFact(ctx context.Context, key string) (string, error)
	// ListFacts returns all facts ordered by key.
	ListFacts(ctx context.Context) ([]model.Fact, error)

	// InsertIncident appends a row and returns its id.
	InsertIncident(ctx context.Context, summary, resolution string) (int64, error)
	// CountIncidents returns the number of rows in the incident log.
	CountIncidents(ctx context.Context) (int, error)
	// ListIncidents returns up to limit rows ordered by ascending id; limit <= 0 means all.
	ListIncidents(ctx context.Context, limit int) ([]model.Incident, error)
	// SearchIncidents returns rows whose summary contains substr (case-sensitive), ordered by id.
	SearchIncidents(ctx context.Context, substr string) ([]model.Incident, error)
	// DeleteIncidents removes the given ids. Unknown ids are ignored.
	DeleteIncidents(ctx context.Context, ids []int64) error
	// ReplaceIncidents deletes ids and appends one replacement row in a single
	// transaction, returning the new row's id.
	ReplaceIncidents(ctx context.Context, ids []int64, summary, resolution string) (int64, error)

	Close() error
}

// Engine names accepted by Open.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

// Options selects and configures an engine.
type Options struct {
	Engine      string
	Path        string // SQLite file path or ":memory:"
	DatabaseURL string // Postgres DSN
}

// Open connects to the configured engine and applies its migrations.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Persistence, error) {
	switch opts.Engine {
	case EngineSQLite, "":
		return OpenSQLite(ctx, opts.Path, logger)
	case EnginePostgres:
		return OpenPostgres(ctx, opts.DatabaseURL, logger)
	case EngineMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", opts.Engine)
	}
}
