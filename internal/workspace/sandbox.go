// Package workspace confines file operations to the allow-listed roots and
// manages the generated module store.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosuda/vrcreator/internal/domain"
)

// Sandbox resolves caller paths against a project root and accepts only
// strict descendants of its allow-listed roots.
type Sandbox struct {
	root  string
	roots []string
}

// NewSandbox creates a sandbox. Relative allowed roots are joined to
// projectRoot; each root is created if missing.
func NewSandbox(projectRoot string, allowed ...string) (*Sandbox, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace.NewSandbox: %w", err)
	}
	root, err = evalExisting(root)
	if err != nil {
		return nil, fmt.Errorf("workspace.NewSandbox: %w", err)
	}
	if len(allowed) == 0 {
		return nil, errors.New("workspace.NewSandbox: no allowed roots")
	}

	s := &Sandbox{root: root}
	for _, a := range allowed {
		if !filepath.IsAbs(a) {
			a = filepath.Join(root, a)
		}
		if err := os.MkdirAll(a, 0o755); err != nil {
			return nil, fmt.Errorf("workspace.NewSandbox: create %s: %w", a, err)
		}
		real, err := filepath.EvalSymlinks(a)
		if err != nil {
			return nil, fmt.Errorf("workspace.NewSandbox: %w", err)
		}
		s.roots = append(s.roots, real)
	}
	return s, nil
}

// Root returns the project root.
func (s *Sandbox) Root() string { return s.root }

// Roots returns the resolved allow-listed roots.
func (s *Sandbox) Roots() []string { return append([]string(nil), s.roots...) }

// Resolve returns the absolute path for p, or ErrPathRejected when it does
// not land strictly inside an allowed root. Symlinks in existing ancestors
// are followed before the check.
func (s *Sandbox) Resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" || strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("workspace.Sandbox.Resolve %q: %w", p, domain.ErrPathRejected)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	abs, err := evalExisting(filepath.Clean(p))
	if err != nil {
		return "", fmt.Errorf("workspace.Sandbox.Resolve %q: %w", p, err)
	}
	for _, r := range s.roots {
		if within(r, abs) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("workspace.Sandbox.Resolve %q: %w", p, domain.ErrPathRejected)
}

// Rel renders abs relative to the project root for display.
func (s *Sandbox) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return filepath.ToSlash(rel)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting resolves symlinks in the longest existing prefix of p and
// appends the rest unchanged.
func evalExisting(p string) (string, error) {
	var rest []string
	cur := p
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{real}, rest...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}
