package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
)

// Postgres stores documents in a single jsonb-backed table. Equality
// filters are pushed down as data->>field comparisons; remaining shaping
// happens client-side on the (per-user, bounded) result set.
type Postgres struct {
	db *sql.DB
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	data       JSONB NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection);
CREATE INDEX IF NOT EXISTS documents_collection_updated_idx ON documents (collection, updated_at DESC);
`

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, domain.E(domain.KindConfig, "store_pg_open", "opening postgres connection", err)
	}
	if err := db.Ping(); err != nil {
		return nil, domain.E(domain.KindConfig, "store_pg_ping", "pinging postgres", err)
	}
	if _, err := db.Exec(pgSchema); err != nil {
		return nil, domain.E(domain.KindConfig, "store_pg_schema", "ensuring documents schema", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection without touching the
// schema, used by tests.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Get unmarshals the document at path into out.
func (p *Postgres) Get(ctx context.Context, path string, out interface{}) error {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&raw)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Put upserts the document at path.
func (p *Postgres) Put(ctx context.Context, path string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	collection, _ := SplitPath(path)
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, data, version, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, version = documents.version + 1, updated_at = now()`,
		path, collection, raw)
	return err
}

// Update performs an optimistic read-modify-write, retried 3 times on
// version conflict before surfacing a consistency error.
func (p *Postgres) Update(ctx context.Context, path string, mutate func(raw json.RawMessage) (interface{}, error)) error {
	collection, _ := SplitPath(path)

	for attempt := 0; attempt < 3; attempt++ {
		var raw []byte
		var version int64
		err := p.db.QueryRowContext(ctx,
			`SELECT data, version FROM documents WHERE path = $1`, path).Scan(&raw, &version)
		exists := err == nil
		if err != nil && err != sql.ErrNoRows {
			return err
		}

		next, err := mutate(raw)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		if !exists {
			res, err := p.db.ExecContext(ctx, `
				INSERT INTO documents (path, collection, data, version, updated_at)
				VALUES ($1, $2, $3, 1, now())
				ON CONFLICT (path) DO NOTHING`,
				path, collection, encoded)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 1 {
				return nil
			}
			continue // someone created it first, re-read
		}

		res, err := p.db.ExecContext(ctx, `
			UPDATE documents SET data = $1, version = version + 1, updated_at = now()
			WHERE path = $2 AND version = $3`,
			encoded, path, version)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			return nil
		}
	}

	return domain.E(domain.KindConsistency, "store_update_conflict",
		"optimistic update lost 3 times on "+path, nil)
}

// Delete removes the document at path.
func (p *Postgres) Delete(ctx context.Context, path string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE path = $1`, path)
	return err
}

var fieldNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// QueryDocs pushes equality filters into SQL and applies the rest of the
// query shape client-side.
func (p *Postgres) QueryDocs(ctx context.Context, collection string, q Query) ([]json.RawMessage, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM documents WHERE collection = $1`)
	args := []interface{}{collection}

	var residual []Filter
	for _, f := range q.Filters {
		if f.Op == OpEq && fieldNameRE.MatchString(f.Field) {
			args = append(args, fmt.Sprintf("%v", f.Value))
			sb.WriteString(fmt.Sprintf(` AND data->>'%s' = $%d`, f.Field, len(args)))
			continue
		}
		residual = append(residual, f)
	}

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var raws []json.RawMessage
	var decoded []map[string]interface{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		if !matchFilters(doc, residual) {
			continue
		}
		raws = append(raws, json.RawMessage(raw))
		decoded = append(decoded, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortDocs(decoded, raws, q)
	if q.Limit > 0 && len(raws) > q.Limit {
		raws = raws[:q.Limit]
	}
	return raws, nil
}

// Close closes the underlying connection pool.
func (p *Postgres) Close() error { return p.db.Close() }
