package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps one poll cursor per account as <dir>/.typex_pos_<key>.json.
// A file has a single writer: the monitor that owns the account.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. An empty dir means the
// working directory.
func NewFileStore(dir string) *FileStore {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

type state struct {
	Pos *int64 `json:"pos"`
}

// SafeKey replaces every character that is not an ASCII letter or digit with "_".
func SafeKey(key string) string {
	if key == "" {
		key = "default"
	}
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Path returns the cursor file for key.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, ".typex_pos_"+SafeKey(key)+".json")
}

// Location is Path; it lets FileStore satisfy Store.
func (s *FileStore) Location(key string) string { return s.Path(key) }

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// Load returns the persisted position for key. A missing file is position 0.
func (s *FileStore) Load(_ context.Context, key string) (int64, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cursor: %w", err)
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return 0, fmt.Errorf("decode cursor %s: %w", s.Path(key), err)
	}
	if st.Pos == nil {
		return 0, fmt.Errorf("decode cursor %s: missing pos", s.Path(key))
	}
	return *st.Pos, nil
}

// Save durably replaces the position for key.
func (s *FileStore) Save(_ context.Context, key string, pos int64) error {
	data, err := json.Marshal(state{Pos: &pos})
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	return writeAtomic(s.Path(key), data)
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path, so readers see either the old or the new content.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cursor dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
