package cursor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps every account's poll cursor in one SQLite database.
// Keys are stored in their SafeKey form, so file and sqlite stores address
// the same cursor by the same key.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create cursor dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cursor db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cursor db: %w", err)
	}
	return &SQLiteStore{db: db, path: dbPath}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cursors (
			key        TEXT PRIMARY KEY,
			pos        INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Location describes where the cursor for key lives.
func (s *SQLiteStore) Location(key string) string {
	return s.path + "#" + SafeKey(key)
}

// Load returns the persisted position for key. A missing row is position 0.
func (s *SQLiteStore) Load(ctx context.Context, key string) (int64, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx, "SELECT pos FROM cursors WHERE key = ?", SafeKey(key)).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cursor %s: %w", SafeKey(key), err)
	}
	return pos, nil
}

// Save replaces the position for key.
func (s *SQLiteStore) Save(ctx context.Context, key string, pos int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (key, pos, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET pos = excluded.pos, updated_at = excluded.updated_at`,
		SafeKey(key), pos, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write cursor %s: %w", SafeKey(key), err)
	}
	return nil
}
