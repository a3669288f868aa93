package domain

import (
	"context"
	"regexp"
	"time"
)

// SceneSnapshot is the metadata.json record of a saved scene.
type SceneSnapshot struct {
	Name      string    `json:"name"`
	SessionID string    `json:"sessionId"`
	SavedAt   time.Time `json:"savedAt"`
	FileCount int       `json:"fileCount"`
	Files     []string  `json:"files"`
}

// SnapshotSummary is one entry of list_saved_scenes.
type SnapshotSummary struct {
	Name      string    `json:"name"`
	FileCount int       `json:"fileCount"`
	SavedAt   time.Time `json:"savedAt"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`) //nolint:gochecknoglobals // compiled regexp

// ValidName reports whether s only uses letters, digits, dash and underscore.
// It is the charset for snapshot names and session IDs.
func ValidName(s string) bool {
	return len(s) <= 128 && namePattern.MatchString(s)
}

// SnapshotRepository stores named, session-scoped copies of the module store.
type SnapshotRepository interface {
	Save(ctx context.Context, sessionID, name string, files map[string][]byte) (*SceneSnapshot, error)
	Load(ctx context.Context, sessionID, name string) (*SceneSnapshot, map[string][]byte, error)
	List(ctx context.Context, sessionID string) ([]SnapshotSummary, error)
}
