package domain

import (
	"sync/atomic"
	"time"
)

// Action discriminates relay event messages.
type Action string

const (
	ActionConnected       Action = "connected"
	ActionExecute         Action = "execute"
	ActionEval            Action = "eval"
	ActionFileChanged     Action = "file_changed"
	ActionFileDeleted     Action = "file_deleted"
	ActionToolUseStart    Action = "tool_use_start"
	ActionToolUseComplete Action = "tool_use_complete"
	ActionToolUseFailed   Action = "tool_use_failed"
	ActionAgentThinking   Action = "agent_thinking"

	ActionModuleLoaded  Action = "module_loaded"
	ActionModuleFailed  Action = "module_failed"
	ActionModuleRemoved Action = "module_removed"
	ActionSceneState    Action = "scene_state"
	ActionSceneDelta    Action = "scene_delta"
	ActionAgentStatus   Action = "agent_status"

	// Inbound only (browser -> backend).
	ActionPrompt      Action = "prompt"
	ActionInteraction Action = "interaction"
	ActionPing        Action = "ping"
)

// Event is the self-contained JSON message carried by the relay.
type Event struct {
	Action    Action         `json:"action"`
	Timestamp int64          `json:"timestamp"`
	Code      string         `json:"code,omitempty"`
	FilePath  string         `json:"filePath,omitempty"`
	ModuleID  string         `json:"moduleId,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	ToolInput map[string]any `json:"toolInput,omitempty"`
	Text      string         `json:"text,omitempty"`
	Message   string         `json:"message,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Status    string         `json:"status,omitempty"`
	OK        *bool          `json:"ok,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Entities  any            `json:"entities,omitempty"`
	Delta     any            `json:"delta,omitempty"`
}

var lastTimestamp atomic.Int64 //nolint:gochecknoglobals // process-wide monotonic clock

// Now returns the current time in epoch milliseconds, never smaller than a
// value it returned before.
func Now() int64 {
	for {
		now := time.Now().UnixMilli()
		last := lastTimestamp.Load()
		if now < last {
			now = last
		}
		if lastTimestamp.CompareAndSwap(last, now) {
			return now
		}
	}
}

// NewEvent stamps a new event with the given action.
func NewEvent(action Action) Event {
	return Event{Action: action, Timestamp: Now()}
}

func FileChangedEvent(path string) Event {
	e := NewEvent(ActionFileChanged)
	e.FilePath = path
	e.ModuleID = ModuleKey(path)
	return e
}

func FileDeletedEvent(path string) Event {
	e := NewEvent(ActionFileDeleted)
	e.FilePath = path
	e.ModuleID = ModuleKey(path)
	return e
}

func ExecuteEvent(moduleID, code string) Event {
	e := NewEvent(ActionExecute)
	e.ModuleID = moduleID
	e.Code = code
	return e
}

func ToolUseStartEvent(tool string, input map[string]any) Event {
	e := NewEvent(ActionToolUseStart)
	e.ToolName = tool
	e.ToolInput = input
	return e
}

func ToolUseCompleteEvent(tool, message string) Event {
	e := NewEvent(ActionToolUseComplete)
	e.ToolName = tool
	e.Message = message
	return e
}

func ToolUseFailedEvent(tool, message string) Event {
	e := NewEvent(ActionToolUseFailed)
	e.ToolName = tool
	e.Message = message
	return e
}

func AgentThinkingEvent(text string) Event {
	e := NewEvent(ActionAgentThinking)
	e.Text = text
	return e
}

// ModuleEvent reports a bridge outcome for a module key.
func ModuleEvent(action Action, moduleID, message string) Event {
	e := NewEvent(action)
	e.ModuleID = moduleID
	e.Message = message
	return e
}
