// Package mcptools exposes the scene tool layer to coding agents over MCP.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	zlog "github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/agent"
)

// Source tags journal entries for calls that arrived over MCP.
const Source = "mcp"

// Options configures the MCP server.
type Options struct {
	Version      string
	GeneratedDir string // project-relative, shown in the module guide
}

// Server wraps an MCP server whose tools delegate to an agent.Toolset.
type Server struct {
	mcp   *server.MCPServer
	tools *agent.Toolset
	opts  Options
}

func New(tools *agent.Toolset, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{tools: tools, opts: opts}
	s.mcp = server.NewMCPServer(
		agent.MCPServerName,
		opts.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(agent.Guide(opts.GeneratedDir)),
	)
	s.mcp.AddTools(s.Tools()...)
	s.mcp.AddResource(s.guideResource(), s.handleGuide)
	s.mcp.AddResource(s.statusResource(), s.handleStatus)
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Handler returns a stateless streamable HTTP handler for mounting at /mcp.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}

// ServeStdio serves MCP over a line-delimited stream until in closes or ctx
// is cancelled. Diagnostics go to the zerolog logger since out carries the
// protocol.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	errLog := zlog.Logger.With().Str("component", "mcp-stdio").Logger()
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(errLog, "", 0))
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcptools.Server.ServeStdio: %w", err)
	}
	return nil
}

// call runs fn through the toolset so the relay and journal see it, and
// turns the outcome into a tool result. Domain failures are results, not
// protocol errors.
func (s *Server) call(ctx context.Context, req mcp.CallToolRequest, fn func(context.Context) (any, error)) (*mcp.CallToolResult, error) {
	res, err := s.tools.Call(ctx, Source, req.Params.Name, req.GetArguments(), fn)
	if err != nil {
		raw, mErr := json.Marshal(agent.FailureOf(err))
		if mErr != nil {
			return nil, fmt.Errorf("mcptools.Server.call: %w", mErr)
		}
		return mcp.NewToolResultError(string(raw)), nil
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("mcptools.Server.call: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
