package agent

import (
	"encoding/json"
	"strings"

	"github.com/gosuda/vrcreator/internal/domain"
)

// SceneToolPrefix marks tools served by our own MCP server. Their progress is
// reported by the tool layer itself, so the stream parser skips them.
const SceneToolPrefix = "mcp__vrcreator__"

// streamLine is the subset of the agent CLI's stream-json output we read.
type streamLine struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   json.RawMessage `json:"message"`
	Result    string          `json:"result"`
	IsError   bool            `json:"is_error"`
}

type streamMessage struct {
	Content []streamBlock `json:"content"`
}

type streamBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

// StreamResult is the terminal "result" line of a run.
type StreamResult struct {
	Text    string
	IsError bool
}

// StreamParser turns stream-json lines into relay events. It is not safe for
// concurrent use; one parser serves one run.
type StreamParser struct {
	pending   map[string]string // tool_use id -> tool name
	sessionID string
	result    *StreamResult
}

func NewStreamParser() *StreamParser {
	return &StreamParser{pending: make(map[string]string)}
}

// SessionID returns the agent CLI's own session id once the init line is seen.
func (p *StreamParser) SessionID() string { return p.sessionID }

// Result returns the terminal result, or nil if the run has not finished.
func (p *StreamParser) Result() *StreamResult { return p.result }

// Feed parses one line. Non-JSON lines and unknown types produce nothing.
func (p *StreamParser) Feed(line string) []domain.Event {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return nil
	}
	var sl streamLine
	if err := json.Unmarshal([]byte(line), &sl); err != nil {
		return nil
	}

	switch sl.Type {
	case "system":
		if sl.Subtype == "init" && sl.SessionID != "" {
			p.sessionID = sl.SessionID
		}
		return nil
	case "assistant":
		return p.assistant(sl.Message)
	case "user":
		return p.user(sl.Message)
	case "result":
		p.result = &StreamResult{Text: sl.Result, IsError: sl.IsError || strings.HasPrefix(sl.Subtype, "error")}
		return nil
	default:
		return nil
	}
}

func (p *StreamParser) assistant(raw json.RawMessage) []domain.Event {
	var m streamMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	var out []domain.Event
	for _, b := range m.Content {
		switch b.Type {
		case "text":
			if t := strings.TrimSpace(b.Text); t != "" {
				out = append(out, domain.AgentThinkingEvent(t))
			}
		case "thinking":
			if t := strings.TrimSpace(b.Thinking); t != "" {
				out = append(out, domain.AgentThinkingEvent(t))
			}
		case "tool_use":
			if strings.HasPrefix(b.Name, SceneToolPrefix) {
				continue
			}
			p.pending[b.ID] = b.Name
			var input map[string]any
			_ = json.Unmarshal(b.Input, &input)
			out = append(out, domain.ToolUseStartEvent(b.Name, input))
		}
	}
	return out
}

func (p *StreamParser) user(raw json.RawMessage) []domain.Event {
	var m streamMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	var out []domain.Event
	for _, b := range m.Content {
		if b.Type != "tool_result" {
			continue
		}
		name, ok := p.pending[b.ToolUseID]
		if !ok {
			continue
		}
		delete(p.pending, b.ToolUseID)
		text := resultText(b.Content)
		if b.IsError {
			out = append(out, domain.ToolUseFailedEvent(name, text))
		} else {
			out = append(out, domain.ToolUseCompleteEvent(name, text))
		}
	}
	return out
}

// resultText flattens a tool_result content field, which is either a string
// or a list of text blocks, and truncates it for display.
func resultText(raw json.RawMessage) string {
	const maxLen = 500
	var s string
	if json.Unmarshal(raw, &s) != nil {
		var blocks []streamBlock
		if json.Unmarshal(raw, &blocks) == nil {
			parts := make([]string, 0, len(blocks))
			for _, b := range blocks {
				if b.Text != "" {
					parts = append(parts, b.Text)
				}
			}
			s = strings.Join(parts, "\n")
		}
	}
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
