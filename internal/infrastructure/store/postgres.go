package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	kind       TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL DEFAULT '{}'::jsonb,
	created_by TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);
CREATE INDEX IF NOT EXISTS records_kind_created_at_idx ON records (kind, created_at DESC);
`

const recordColumns = `id, kind, data, created_by, created_at, updated_at`

// Postgres stores records as JSONB rows in a single table keyed by kind.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the records table if it does not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (p *Postgres) Create(ctx context.Context, kind string, data map[string]any, createdBy string) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`INSERT INTO records (kind, id, data, created_by)
		 VALUES ($1, gen_random_uuid()::text, $2, $3)
		 RETURNING `+recordColumns,
		kind, sanitize(data), createdBy)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s record: %w", kind, err)
	}
	return rec, nil
}

func (p *Postgres) Get(ctx context.Context, kind, id string) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = $1 AND id = $2`, kind, id)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s record: %w", kind, err)
	}
	return rec, nil
}

func (p *Postgres) List(ctx context.Context, kind string, limit, offset int) ([]*Record, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM records WHERE kind = $1
		 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		kind, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", kind, err)
	}
	return records, nil
}

func (p *Postgres) Update(ctx context.Context, kind, id string, patch map[string]any) (*Record, error) {
	row := p.pool.QueryRow(ctx,
		`UPDATE records SET data = data || $3, updated_at = now()
		 WHERE kind = $1 AND id = $2
		 RETURNING `+recordColumns,
		kind, id, sanitize(patch))

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update %s record: %w", kind, err)
	}
	return rec, nil
}

func (p *Postgres) Ensure(ctx context.Context, kind, id string, data map[string]any, createdBy string) (*Record, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO records (kind, id, data, created_by)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (kind, id) DO NOTHING`,
		kind, id, sanitize(data), createdBy)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure %s record: %w", kind, err)
	}
	return p.Get(ctx, kind, id)
}

func (p *Postgres) Modify(ctx context.Context, kind, id string, fn func(data map[string]any) error) (*Record, error) {
	var out *Record
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		rec, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM records WHERE kind = $1 AND id = $2 FOR UPDATE`, kind, id))
		if err != nil {
			return err
		}
		if err := fn(rec.Data); err != nil {
			return err
		}

		out, err = scanRecord(tx.QueryRow(ctx,
			`UPDATE records SET data = $3, updated_at = now()
			 WHERE kind = $1 AND id = $2
			 RETURNING `+recordColumns,
			kind, id, sanitize(rec.Data)))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, kind, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM records WHERE kind = $1 AND id = $2`, kind, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	if err := row.Scan(&rec.ID, &rec.Kind, &rec.Data, &rec.CreatedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	return &rec, nil
}
