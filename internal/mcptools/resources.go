package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gosuda/vrcreator/internal/agent"
)

const (
	guideURI  = "vrcreator://docs/modules"
	statusURI = "vrcreator://scene/status"
)

func (s *Server) guideResource() mcp.Resource {
	return mcp.NewResource(
		guideURI,
		"Scene module guide",
		mcp.WithResourceDescription("How to write hot-reloadable scene modules"),
		mcp.WithMIMEType("text/markdown"),
	)
}

func (s *Server) handleGuide(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     agent.Guide(s.opts.GeneratedDir),
		},
	}, nil
}

func (s *Server) statusResource() mcp.Resource {
	return mcp.NewResource(
		statusURI,
		"Scene status",
		mcp.WithResourceDescription("Live module states as JSON"),
		mcp.WithMIMEType("application/json"),
	)
}

func (s *Server) handleStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	status, err := s.tools.SceneStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcptools.Server.handleStatus: %w", err)
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcptools.Server.handleStatus: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
