package snapshot_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/store/snapshot"
)

func newStore(t *testing.T) *snapshot.Store {
	t.Helper()
	s, err := snapshot.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	files := map[string][]byte{
		"crate.go": []byte("package crate\n"),
		"floor.go": {0x00, 0xff, '\n'},
	}

	meta, err := s.Save(ctx, "sess-1", "demo", files)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.FileCount)
	assert.Equal(t, []string{"crate.go", "floor.go"}, meta.Files)

	got, loaded, err := s.Load(ctx, "sess-1", "demo")
	require.NoError(t, err)
	assert.Equal(t, files, loaded)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, "sess-1", got.SessionID)

	raw, err := os.ReadFile(filepath.Join(s.Root(), "sess-1", "demo", "metadata.json"))
	require.NoError(t, err)
	var onDisk map[string]any
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	for _, k := range []string{"name", "sessionId", "savedAt", "fileCount", "files"} {
		assert.Contains(t, onDisk, k)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	_, err := s.Save(ctx, "s", "demo", map[string][]byte{"a.go": []byte("a"), "b.go": []byte("b")})
	require.NoError(t, err)
	_, err = s.Save(ctx, "s", "demo", map[string][]byte{"c.go": []byte("c")})
	require.NoError(t, err)

	_, files, err := s.Load(ctx, "s", "demo")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"c.go": []byte("c")}, files)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "s"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging dirs left behind")
}

func TestStore_Validation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	one := map[string][]byte{"a.go": []byte("a")}

	tests := []struct {
		name    string
		session string
		snap    string
		files   map[string][]byte
		want    error
	}{
		{"space and punctuation", "s", "my scene!", one, domain.ErrInvalidName},
		{"traversal name", "s", "../x", one, domain.ErrInvalidName},
		{"empty name", "s", "", one, domain.ErrInvalidName},
		{"bad session", "../s", "demo", one, domain.ErrInvalidName},
		{"no files", "s", "demo", nil, domain.ErrEmptySource},
		{"nested file name", "s", "demo", map[string][]byte{"x/a.go": nil}, domain.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := s.Save(ctx, tt.session, tt.snap, tt.files)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := s.Save(ctx, "s", "my-scene_1", one)
	require.NoError(t, err)
}

func TestStore_LoadErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	_, _, err := s.Load(ctx, "s", "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	dir := filepath.Join(s.Root(), "s", "hollow")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := `{"name":"hollow","sessionId":"s","savedAt":"2026-01-01T00:00:00Z","fileCount":0,"files":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(meta), 0o644))

	_, _, err = s.Load(ctx, "s", "hollow")
	require.ErrorIs(t, err, domain.ErrEmptySnapshot)
}

func TestStore_List(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	list, err := s.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.Save(ctx, "s", "first", map[string][]byte{"a.go": nil})
	require.NoError(t, err)
	_, err = s.Save(ctx, "s", "second", map[string][]byte{"a.go": nil, "b.go": nil})
	require.NoError(t, err)
	_, err = s.Save(ctx, "other", "third", map[string][]byte{"a.go": nil})
	require.NoError(t, err)

	list, err = s.List(ctx, "s")
	require.NoError(t, err)
	require.Len(t, list, 2)
	names := []string{list[0].Name, list[1].Name}
	assert.ElementsMatch(t, []string{"first", "second"}, names)
}
