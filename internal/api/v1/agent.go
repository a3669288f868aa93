package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/vrcreator/internal/agent"
)

type StartPromptInput struct {
	Body struct {
		Prompt string `json:"prompt" minLength:"1" maxLength:"20000" doc:"Instruction for the agent"`
	}
}

type AgentSessionOutput struct {
	Body agent.Session
}

type CancelAgentInput struct{}

type GetAgentInput struct{}

// RegisterAgentRoutes mounts the agent session endpoints. A nil controller
// answers 503 so clients can tell a disabled agent from a broken one.
func RegisterAgentRoutes(api huma.API, ctl AgentController) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-agent-prompt",
		Method:        http.MethodPost,
		Path:          "/agent/prompt",
		Summary:       "Start an agent session for a prompt",
		Tags:          []string{"Agent"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *StartPromptInput) (*AgentSessionOutput, error) {
		if ctl == nil {
			return nil, huma.Error503ServiceUnavailable("agent is not configured")
		}
		s, err := ctl.Start(ctx, input.Body.Prompt)
		if err != nil {
			return nil, toHumaError("failed to start agent session", err)
		}
		return &AgentSessionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-agent",
		Method:      http.MethodPost,
		Path:        "/agent/cancel",
		Summary:     "Cancel the running agent session",
		Tags:        []string{"Agent"},
	}, func(_ context.Context, _ *CancelAgentInput) (*AgentSessionOutput, error) {
		if ctl == nil {
			return nil, huma.Error503ServiceUnavailable("agent is not configured")
		}
		s, err := ctl.Cancel()
		if err != nil {
			return nil, toHumaError("failed to cancel agent session", err)
		}
		return &AgentSessionOutput{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agent",
		Summary:     "Get the latest agent session",
		Tags:        []string{"Agent"},
	}, func(_ context.Context, _ *GetAgentInput) (*AgentSessionOutput, error) {
		if ctl == nil {
			return nil, huma.Error503ServiceUnavailable("agent is not configured")
		}
		s, ok := ctl.Current()
		if !ok {
			return nil, huma.Error404NotFound("no agent session yet")
		}
		return &AgentSessionOutput{Body: s}, nil
	})
}
