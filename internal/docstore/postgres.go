package docstore

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"
)

const createCollectionsTable = `
CREATE TABLE IF NOT EXISTS collections (
    name TEXT PRIMARY KEY,
    doc  JSONB NOT NULL DEFAULT 'null'::jsonb
)`

// PostgresStore keeps each collection in one JSONB row and serializes
// writers with SELECT ... FOR UPDATE, giving the same exclusive
// load-mutate-persist cycle as the other backends with database-grade
// durability.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore ensures the backing table exists.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createCollectionsTable); err != nil {
		return nil, unavailable("create collections table", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Update(ctx context.Context, collection string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	// Seed the row so FOR UPDATE always has something to lock.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`,
		collection); err != nil {
		return unavailable("seed "+collection, err)
	}

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM collections WHERE name = $1 FOR UPDATE`,
		collection).Scan(&raw)
	if err != nil {
		return unavailable("read "+collection, err)
	}
	raw = normalizeJSONNull(raw)

	out, changed, err := fn(raw)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET doc = $2 WHERE name = $1`,
		collection, out); err != nil {
		return unavailable("write "+collection, err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit "+collection, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, collection string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM collections WHERE name = $1`, collection).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read "+collection, err)
	}
	return normalizeJSONNull(raw), nil
}

func normalizeJSONNull(raw []byte) []byte {
	if string(raw) == "null" {
		return nil
	}
	return raw
}
