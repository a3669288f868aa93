package v1

import (
	"context"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/domain"
)

// Source tags journal entries written by the HTTP surface.
const Source = "http"

// ModuleController abstracts the bridge for handler testing.
// *bridge.Bridge satisfies this interface.
type ModuleController interface {
	Modules() []domain.GeneratedModule
	Module(key string) (domain.GeneratedModule, bool)
	Reload(ctx context.Context, key string) error
	Abort(key string) bool
}

// AgentController abstracts the agent session lifecycle for handler testing.
// *agent.SessionManager satisfies this interface.
type AgentController interface {
	Start(ctx context.Context, prompt string) (agent.Session, error)
	Cancel() (agent.Session, error)
	Current() (agent.Session, bool)
}

// JournalReader lists recent tool calls. domain.ToolCallRepository satisfies
// this interface.
type JournalReader interface {
	ListRecent(ctx context.Context, limit int) ([]*domain.ToolCall, error)
}
