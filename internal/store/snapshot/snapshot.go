// Package snapshot stores named, session-scoped copies of the module store as
// {root}/{sessionId}/{name}/ with a metadata.json beside the files.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
)

const metadataFile = "metadata.json"

// Store implements domain.SnapshotRepository on the local filesystem.
type Store struct {
	root string
	now  func() time.Time
}

var _ domain.SnapshotRepository = (*Store)(nil)

// New creates a snapshot store rooted at root.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot.New: %w", err)
	}
	return &Store{root: root, now: time.Now}, nil
}

func (s *Store) Root() string { return s.root }

func validate(sessionID, name string) error {
	if !domain.ValidName(sessionID) {
		return fmt.Errorf("session id %q: %w", sessionID, domain.ErrInvalidName)
	}
	if name != "" && !domain.ValidName(name) {
		return fmt.Errorf("snapshot name %q: %w", name, domain.ErrInvalidName)
	}
	return nil
}

// Save writes files as snapshot name of sessionID, replacing any snapshot of
// the same name. The new snapshot becomes visible in one rename.
func (s *Store) Save(_ context.Context, sessionID, name string, files map[string][]byte) (*domain.SceneSnapshot, error) {
	if name == "" {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", domain.ErrInvalidName)
	}
	if err := validate(sessionID, name); err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", domain.ErrEmptySource)
	}

	names := make([]string, 0, len(files))
	for n := range files {
		if n != filepath.Base(n) || n == metadataFile || n == "." || n == ".." {
			return nil, fmt.Errorf("snapshot.Store.Save: file %q: %w", n, domain.ErrInvalidName)
		}
		names = append(names, n)
	}
	sort.Strings(names)

	sessionDir := filepath.Join(s.root, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}
	tmp, err := os.MkdirTemp(sessionDir, "."+name+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}
	defer os.RemoveAll(tmp) //nolint:errcheck // best-effort cleanup of the staging dir

	for _, n := range names {
		if err := os.WriteFile(filepath.Join(tmp, n), files[n], 0o644); err != nil {
			return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
		}
	}
	meta := &domain.SceneSnapshot{
		Name:      name,
		SessionID: sessionID,
		SavedAt:   s.now().UTC(),
		FileCount: len(names),
		Files:     names,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, metadataFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}

	dst := filepath.Join(sessionDir, name)
	if err := os.RemoveAll(dst); err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: replace: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return nil, fmt.Errorf("snapshot.Store.Save: %w", err)
	}
	return meta, nil
}

// Load returns the metadata and file contents of a snapshot.
func (s *Store) Load(_ context.Context, sessionID, name string) (*domain.SceneSnapshot, map[string][]byte, error) {
	if err := validate(sessionID, name); err != nil {
		return nil, nil, fmt.Errorf("snapshot.Store.Load: %w", err)
	}
	dir := filepath.Join(s.root, sessionID, name)
	meta, err := readMeta(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot.Store.Load %s/%s: %w", sessionID, name, err)
	}
	if len(meta.Files) == 0 {
		return nil, nil, fmt.Errorf("snapshot.Store.Load %s/%s: %w", sessionID, name, domain.ErrEmptySnapshot)
	}

	files := make(map[string][]byte, len(meta.Files))
	for _, n := range meta.Files {
		if n != filepath.Base(n) {
			return nil, nil, fmt.Errorf("snapshot.Store.Load: file %q: %w", n, domain.ErrInvalidName)
		}
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot.Store.Load: %w", err)
		}
		files[n] = data
	}
	return meta, files, nil
}

// List returns the snapshots of a session, newest first. An unknown session
// has no snapshots.
func (s *Store) List(_ context.Context, sessionID string) ([]domain.SnapshotSummary, error) {
	if err := validate(sessionID, ""); err != nil {
		return nil, fmt.Errorf("snapshot.Store.List: %w", err)
	}
	entries, err := os.ReadDir(filepath.Join(s.root, sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.SnapshotSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot.Store.List: %w", err)
	}

	out := make([]domain.SnapshotSummary, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !domain.ValidName(e.Name()) {
			continue
		}
		meta, err := readMeta(filepath.Join(s.root, sessionID, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Str("snapshot", e.Name()).
				Msg("snapshot.Store.List: skipping unreadable snapshot")
			continue
		}
		out = append(out, domain.SnapshotSummary{Name: meta.Name, FileCount: meta.FileCount, SavedAt: meta.SavedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

func readMeta(dir string) (*domain.SceneSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta domain.SceneSnapshot
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", metadataFile, err)
	}
	return &meta, nil
}
