package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gosuda/vrcreator/internal/domain"
)

// FileInfo describes one module file.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// Store is the generated module store: one directory, one source file per
// module, file name minus extension is the module key.
type Store struct {
	dir string
	ext string
}

// NewStore opens (creating if needed) the module directory. ext includes the
// leading dot, e.g. ".go".
func NewStore(dir, ext string) (*Store, error) {
	if !strings.HasPrefix(ext, ".") {
		return nil, fmt.Errorf("workspace.NewStore: extension %q must start with a dot", ext)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace.NewStore: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace.NewStore: %w", err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	return &Store{dir: abs, ext: ext}, nil
}

func (s *Store) Dir() string { return s.dir }
func (s *Store) Ext() string { return s.ext }

// IsModuleFile reports whether name is a visible file with the module extension.
func (s *Store) IsModuleFile(name string) bool {
	base := filepath.Base(name)
	return !strings.HasPrefix(base, ".") && filepath.Ext(base) == s.ext
}

// Path returns the absolute path of a store file.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// List returns the module files sorted by name.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("workspace.Store.List: %w", err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !s.IsModuleFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("workspace.Store.List: %w", err)
		}
		out = append(out, FileInfo{
			Name:    e.Name(),
			Path:    filepath.Join(s.dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ReadAll returns the content of every module file keyed by file name.
func (s *Store) ReadAll() (map[string][]byte, error) {
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("workspace.Store.ReadAll: %w", err)
		}
		out[f.Name] = data
	}
	return out, nil
}

// Write atomically replaces a module file.
func (s *Store) Write(name string, data []byte) error {
	if !s.IsModuleFile(name) || name != filepath.Base(name) {
		return fmt.Errorf("workspace.Store.Write %q: %w", name, domain.ErrInvalidName)
	}
	return WriteFileAtomic(s.Path(name), data)
}

// Delete removes a module file.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("workspace.Store.Delete %q: %w", name, domain.ErrNotFound)
		}
		return fmt.Errorf("workspace.Store.Delete: %w", err)
	}
	return nil
}

// Clear removes every module file and returns how many were removed.
func (s *Store) Clear() (int, error) {
	files, err := s.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return n, fmt.Errorf("workspace.Store.Clear: %w", err)
		}
		n++
	}
	return n, nil
}

// WriteFileAtomic writes data to a hidden temp file next to path and renames
// it into place, so watchers only ever see complete files.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("workspace.WriteFileAtomic: %w", err)
	}
	return nil
}
