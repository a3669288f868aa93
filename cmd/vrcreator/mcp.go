package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/api/ws"
	"github.com/gosuda/vrcreator/internal/config"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/mcptools"
)

func newMCPCmd(a *app) *cobra.Command {
	var root string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the scene tools over MCP stdio",
		Long:  "mcp serves the scene tools on stdin/stdout for agents that launch their tool server as a child process. Logs go to stderr. With VRC_REDIS_ADDR set, tool events reach clients of a running serve process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if root != "" {
				cfg.Workspace.ProjectRoot = root
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveMCP(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "project root (overrides VRC_PROJECT_ROOT)")
	return cmd
}

func serveMCP(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	deps, err := openWorkspace(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	hubOpts, closeRelay, err := relayOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRelay()

	// Without a backplane nobody is listening.
	var notifyFn func(domain.Event)
	if hubOpts.Backplane != nil {
		notifyFn = ws.NewHub(hubOpts).Broadcast
	}

	tools := agent.NewToolset(agent.ToolsetDeps{
		Sandbox:   deps.sandbox,
		Store:     deps.store,
		Snapshots: deps.snapshots,
		Journal:   deps.journal,
		Notify:    notifyFn,
	})

	log.Info().Str("root", deps.sandbox.Root()).Msg("vrcreator: serving MCP on stdio")
	return mcptools.New(tools, mcptools.Options{Version: version, GeneratedDir: cfg.Workspace.GeneratedDir}).
		ServeStdio(ctx, in, out)
}
