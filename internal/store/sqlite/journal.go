// Package sqlite is the embedded tool-call journal used when no PostgreSQL
// DSN is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gosuda/vrcreator/internal/domain"
)

// Journal implements domain.ToolCallRepository on a SQLite file.
type Journal struct {
	db *sql.DB
}

var _ domain.ToolCallRepository = (*Journal)(nil)

// Open opens (creating if needed) the journal at path. ":memory:" is accepted.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.Open: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}
	// one writer; also keeps ":memory:" on a single connection
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite.Open: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tool_calls (
			id          TEXT PRIMARY KEY,
			tool        TEXT NOT NULL,
			source      TEXT NOT NULL,
			input       TEXT,
			ok          INTEGER NOT NULL,
			error_code  TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_tool_calls_created ON tool_calls(created_at DESC);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Append(ctx context.Context, c *domain.ToolCall) error {
	var input any
	if len(c.Input) > 0 {
		input = string(c.Input)
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, tool, source, input, ok, error_code, message, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Tool, c.Source, input, c.OK, c.ErrorCode, c.Message, c.DurationMS,
		c.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite.Journal.Append: %w", err)
	}
	return nil
}

func (j *Journal) ListRecent(ctx context.Context, limit int) ([]*domain.ToolCall, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, tool, source, input, ok, error_code, message, duration_ms, created_at
		 FROM tool_calls ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Journal.ListRecent: %w", err)
	}
	defer rows.Close()

	var out []*domain.ToolCall
	for rows.Next() {
		var (
			c       domain.ToolCall
			id      string
			input   sql.NullString
			created string
		)
		if err := rows.Scan(&id, &c.Tool, &c.Source, &input, &c.OK, &c.ErrorCode, &c.Message, &c.DurationMS, &created); err != nil {
			return nil, fmt.Errorf("sqlite.Journal.ListRecent: scan: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("sqlite.Journal.ListRecent: id: %w", err)
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("sqlite.Journal.ListRecent: created_at: %w", err)
		}
		if input.Valid {
			c.Input = []byte(input.String)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite.Journal.ListRecent: rows: %w", err)
	}
	return out, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
