package cursor

import (
	"context"
	"fmt"
	"path/filepath"

	"typex-bridge/internal/infra/config"
)

// Store is a cursor store that can describe and release itself.
type Store interface {
	Load(ctx context.Context, key string) (int64, error)
	Save(ctx context.Context, key string, pos int64) error
	Location(key string) string
	Close() error
}

// Open returns the store selected by cfg.Cursor.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Cursor.Backend {
	case "", config.CursorBackendFile:
		return NewFileStore(cfg.DataDir), nil
	case config.CursorBackendSQLite:
		path := cfg.Cursor.Path
		if path == "" {
			path = filepath.Join(cfg.DataDir, "cursors.db")
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown cursor backend %q", cfg.Cursor.Backend)
	}
}
