// Package storage provides the abstract key/value persistence sink nodes
// use to save and reload their state, plus concrete file, SQLite, and
// Postgres backends and a throttling wrapper that coalesces rapid writes.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Storage saves and loads JSON-encoded values by key. Keys are node names.
type Storage interface {
	Save(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string) (data json.RawMessage, found bool, err error)
	Close() error
}

// Open builds the configured storage backend. driver is one of
// "file" (root is a directory), "sqlite", or "postgres" (both take a DSN).
func Open(driver, root, dsn string) (Storage, error) {
	switch driver {
	case "", "file":
		return NewFileStorage(root)
	case "sqlite":
		return NewSQLiteStorage(dsn)
	case "postgres":
		return NewPostgresStorage(dsn)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
