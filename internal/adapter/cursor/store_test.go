package cursor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeKey(t *testing.T) {
	assert.Equal(t, "me_example_com", SafeKey("me@example.com"))
	assert.Equal(t, "Ops_1", SafeKey("Ops-1"))
	assert.Equal(t, "default", SafeKey(""))
	assert.Equal(t, "__", SafeKey("日本"))
}

func TestPath(t *testing.T) {
	s := NewFileStore("/data")
	assert.Equal(t, filepath.Join("/data", ".typex_pos_a_b.json"), s.Path("a.b"))
	assert.Equal(t, filepath.Join(".", ".typex_pos_x.json"), NewFileStore("").Path("x"))
}

func TestLoadMissingIsZero(t *testing.T) {
	s := NewFileStore(t.TempDir())
	pos, err := s.Load(context.Background(), "ops")
	require.NoError(t, err)
	assert.Zero(t, pos)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := NewFileStore(dir)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "ops", 9))
	pos, err := s.Load(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(9), pos)

	data, err := os.ReadFile(s.Path("ops"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"pos":9}`, string(data))

	info, err := os.Stat(s.Path("ops"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, s.Save(ctx, "ops", 12))
	pos, err = s.Load(ctx, "ops")
	require.NoError(t, err)
	assert.Equal(t, int64(12), pos)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLoadCorrupt(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, os.WriteFile(s.Path("bad"), []byte("{not json"), 0o600))
	_, err := s.Load(ctx, "bad")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(s.Path("nopos"), []byte(`{"other":1}`), 0o600))
	_, err = s.Load(ctx, "nopos")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(s.Path("str"), []byte(`{"pos":"5"}`), 0o600))
	_, err = s.Load(ctx, "str")
	assert.Error(t, err)
}

func TestKeysAreIsolated(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "a", 1))
	require.NoError(t, s.Save(ctx, "b", 2))

	a, _ := s.Load(ctx, "a")
	b, _ := s.Load(ctx, "b")
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
}
