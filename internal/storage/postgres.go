package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ManishShirke/aiops-agent/internal/model"
	"github.com/ManishShirke/aiops-agent/migrations"
)

// Postgres is the managed-database engine backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects a pool to dsn, pings it and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger}
	if err := runMigrations(ctx, p, migrations.Postgres(), logger); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Pool returns the underlying connection pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) execMigration(ctx context.Context, query string) error {
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *Postgres) recordMigration(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING`, name)
	return err
}

func (p *Postgres) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (p *Postgres) PutFact(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO facts (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	return wrap("put fact", err)
}

func (p *Postgres) GetFact(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, `SELECT value FROM facts WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, wrap("get fact", err)
}

func (p *Postgres) ListFacts(ctx context.Context) ([]model.Fact, error) {
	rows, err := p.pool.Query(ctx, `SELECT key, value FROM facts ORDER BY key`)
	if err != nil {
		return nil, wrap("list facts", err)
	}
	facts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Fact, error) {
		var f model.Fact
		err := row.Scan(&f.Key, &f.Value)
		return f, err
	})
	return facts, wrap("list facts", err)
}

func (p *Postgres) InsertIncident(ctx context.Context, summary, resolution string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO incidents (summary, resolution) VALUES ($1, $2) RETURNING id`,
		summary, resolution).Scan(&id)
	return id, wrap("insert incident", err)
}

func (p *Postgres) CountIncidents(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM incidents`).Scan(&n)
	return n, wrap("count incidents", err)
}

func (p *Postgres) ListIncidents(ctx context.Context, limit int) ([]model.Incident, error) {
	if limit > 0 {
		return p.queryIncidents(ctx, "list incidents",
			`SELECT id, summary, resolution FROM incidents ORDER BY id ASC LIMIT $1`, limit)
	}
	return p.queryIncidents(ctx, "list incidents",
		`SELECT id, summary, resolution FROM incidents ORDER BY id ASC`)
}

func (p *Postgres) SearchIncidents(ctx context.Context, substr string) ([]model.Incident, error) {
	// strpos is case-sensitive and treats substr literally (no LIKE wildcards).
	return p.queryIncidents(ctx, "search incidents",
		`SELECT id, summary, resolution FROM incidents WHERE strpos(summary, $1) > 0 ORDER BY id ASC`, substr)
}

func (p *Postgres) queryIncidents(ctx context.Context, op, query string, args ...any) ([]model.Incident, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Incident, error) {
		var inc model.Incident
		err := row.Scan(&inc.ID, &inc.Summary, &inc.Resolution)
		return inc, err
	})
	return out, wrap(op, err)
}

func (p *Postgres) DeleteIncidents(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.pool.Exec(ctx, `DELETE FROM incidents WHERE id = ANY($1)`, ids)
	return wrap("delete incidents", err)
}

// ReplaceIncidents runs under a serializable transaction, retried on
// serialization failures and deadlocks.
func (p *Postgres) ReplaceIncidents(ctx context.Context, ids []int64, summary, resolution string) (int64, error) {
	var id int64
	err := compactionRetry.Do(ctx, func() error {
		tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if len(ids) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM incidents WHERE id = ANY($1)`, ids); err != nil {
				return err
			}
		}
		if err := tx.QueryRow(ctx,
			`INSERT INTO incidents (summary, resolution) VALUES ($1, $2) RETURNING id`,
			summary, resolution).Scan(&id); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return 0, wrap("compact incidents", err)
	}
	return id, nil
}
