package domain

import (
	"path/filepath"
	"strings"
	"time"
)

type ModuleStatus string

const (
	ModuleStatusPending ModuleStatus = "pending"
	ModuleStatusActive  ModuleStatus = "active"
	ModuleStatusFailed  ModuleStatus = "failed"
	ModuleStatusRemoved ModuleStatus = "removed"
)

// ValidTransition checks if a module lifecycle transition is allowed.
// A module is reloaded in place (active->active), failed modules recover on the
// next load, and removed modules may come back when the file is written again.
func (s ModuleStatus) ValidTransition(to ModuleStatus) bool {
	switch s {
	case ModuleStatusPending:
		return to == ModuleStatusActive || to == ModuleStatusFailed || to == ModuleStatusRemoved
	case ModuleStatusActive:
		return to == ModuleStatusPending || to == ModuleStatusRemoved
	case ModuleStatusFailed:
		return to == ModuleStatusPending || to == ModuleStatusRemoved
	case ModuleStatusRemoved:
		return to == ModuleStatusPending
	default:
		return false
	}
}

// GeneratedModule is one unit of generated scene logic, backed by one file in
// the generated module store.
type GeneratedModule struct {
	Key         string       `json:"key"`
	Path        string       `json:"path,omitempty"`
	Status      ModuleStatus `json:"status"`
	Generation  int          `json:"generation"`
	SourceHash  string       `json:"sourceHash,omitempty"`
	Error       string       `json:"error,omitempty"`
	EntityCount int          `json:"entityCount"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ModuleKey derives the stable module key from a file path: the base name
// without its extension.
func ModuleKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
