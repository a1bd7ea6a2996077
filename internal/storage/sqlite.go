package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/migrations"
)

// SQLite is the embedded, file-backed engine.
type SQLite struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// A single connection serializes writes and keeps ":memory:" databases alive
	// across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}

	s := &SQLite{db: db, logger: logger}
	if err := runMigrations(ctx, s, migrations.SQLite(), logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB returns the underlying handle for use by tests and tooling.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) execMigration(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLite) recordMigration(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, name)
	return err
}

func (s *SQLite) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (s *SQLite) PutFact(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO facts (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, value)
	return wrap("put fact", err)
}

func (s *SQLite) GetFact(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM facts WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, wrap("get fact", err)
}

func (s *SQLite) ListFacts(ctx context.Context) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM facts ORDER BY key`)
	if err != nil {
		return nil, wrap("list facts", err)
	}
	defer func() { _ = rows.Close() }()

	var facts []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.Key, &f.Value); err != nil {
			return nil, wrap("scan fact", err)
		}
		facts = append(facts, f)
	}
	return facts, wrap("list facts", rows.Err())
}

func (s *SQLite) InsertIncident(ctx context.Context, summary, resolution string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (summary, resolution) VALUES (?, ?)`, summary, resolution)
	if err != nil {
		return 0, wrap("insert incident", err)
	}
	id, err := res.LastInsertId()
	return id, wrap("insert incident", err)
}

func (s *SQLite) CountIncidents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM incidents`).Scan(&n)
	return n, wrap("count incidents", err)
}

func (s *SQLite) ListIncidents(ctx context.Context, limit int) ([]model.Incident, error) {
	query := `SELECT id, summary, resolution FROM incidents ORDER BY id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryIncidents(ctx, "list incidents", query, args...)
}

func (s *SQLite) SearchIncidents(ctx context.Context, substr string) ([]model.Incident, error) {
	// instr is case-sensitive; LIKE would fold ASCII case.
	return s.queryIncidents(ctx, "search incidents",
		`SELECT id, summary, resolution FROM incidents WHERE instr(summary, ?) > 0 ORDER BY id ASC`, substr)
}

func (s *SQLite) queryIncidents(ctx context.Context, op, query string, args ...any) ([]model.Incident, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Incident
	for rows.Next() {
		var inc model.Incident
		if err := rows.Scan(&inc.ID, &inc.Summary, &inc.Resolution); err != nil {
			return nil, wrap(op, err)
		}
		out = append(out, inc)
	}
	return out, wrap(op, rows.Err())
}

func (s *SQLite) DeleteIncidents(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := deleteByIDs(ids)
	_, err := s.db.ExecContext(ctx, query, args...)
	return wrap("delete incidents", err)
}

func (s *SQLite) ReplaceIncidents(ctx context.Context, ids []int64, summary, resolution string) (int64, error) {
	var id int64
	err := compactionRetry.Do(ctx, func() error {
		var err error
		id, err = s.replaceIncidents(ctx, ids, summary, resolution)
		return err
	})
	return id, err
}

func (s *SQLite) replaceIncidents(ctx context.Context, ids []int64, summary, resolution string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("begin compaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(ids) > 0 {
		query, args := deleteByIDs(ids)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return 0, wrap("compact delete", err)
		}
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO incidents (summary, resolution) VALUES (?, ?)`, summary, resolution)
	if err != nil {
		return 0, wrap("compact insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("compact insert", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap("commit compaction", err)
	}
	return id, nil
}

func deleteByIDs(ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return `DELETE FROM incidents WHERE id IN (` + placeholders + `)`, args
}
