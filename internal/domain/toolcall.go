package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ToolCall records a single agent tool invocation for audit and replay.
type ToolCall struct {
	ID         uuid.UUID       `json:"id"`
	Tool       string          `json:"tool"`
	Source     string          `json:"source"` // "mcp" or "http"
	Input      json.RawMessage `json:"input,omitempty"`
	OK         bool            `json:"ok"`
	ErrorCode  string          `json:"errorCode,omitempty"`
	Message    string          `json:"message,omitempty"`
	DurationMS int64           `json:"durationMs"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ToolCallRepository appends and lists journal entries, newest first.
type ToolCallRepository interface {
	Append(ctx context.Context, c *ToolCall) error
	ListRecent(ctx context.Context, limit int) ([]*ToolCall, error)
	Close() error
}
