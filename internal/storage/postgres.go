package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStorage implements Storage over a single key/value table in
// Postgres, for operators who already run Postgres for other services and
// want persisted node state alongside it rather than a directory of files.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage opens a connection pool against dsn and ensures the kv
// table exists.
func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate postgres: %w", err)
	}
	return &PostgresStorage{db: db}, nil
}

func (s *PostgresStorage) Save(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %q: %w", key, err)
	}
	const upsert = `INSERT INTO kv (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = NOW()`
	if _, err := s.db.ExecContext(ctx, upsert, key, data); err != nil {
		return fmt.Errorf("storage: save %q: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Load(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: load %q: %w", key, err)
	}
	return data, true, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
