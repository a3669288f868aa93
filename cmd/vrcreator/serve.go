package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/api/ws"
	"github.com/gosuda/vrcreator/internal/auth"
	"github.com/gosuda/vrcreator/internal/bridge"
	"github.com/gosuda/vrcreator/internal/config"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/mcptools"
	"github.com/gosuda/vrcreator/internal/messenger/slack"
	"github.com/gosuda/vrcreator/internal/notify"
	"github.com/gosuda/vrcreator/internal/pipeline"
	"github.com/gosuda/vrcreator/internal/scene"
	"github.com/gosuda/vrcreator/internal/server"
	"github.com/gosuda/vrcreator/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr, root string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the hot-reload pipeline, relay, HTTP API and MCP endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if addr != "" {
				cfg.Server.Addr = addr
				if os.Getenv("VRC_AGENT_MCP_URL") == "" {
					cfg.Agent.MCPURL = localMCPURL(addr)
				}
			}
			if root != "" {
				cfg.Workspace.ProjectRoot = root
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides VRC_SERVER_ADDR)")
	cmd.Flags().StringVar(&root, "root", "", "project root (overrides VRC_PROJECT_ROOT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
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

	// The hub and the pipeline refer to each other; p is set before the
	// hub accepts its first client.
	var p *pipeline.Pipeline
	hubOpts.State = func(fn func(state any)) { p.State(fn) }
	hubOpts.Inbound = func(ctx context.Context, clientID string, e domain.Event) {
		p.HandleInbound(ctx, clientID, e)
	}
	hub := ws.NewHub(hubOpts)

	world := scene.NewWorld()
	br := bridge.New(ctx, world, bridge.NewRegistry(world), bridge.NewYaegiExecutor(nil), bridge.Options{
		Timeout: cfg.Runtime.ExecTimeout,
		Notify:  hub.Broadcast,
	})
	defer br.Close()

	tools := agent.NewToolset(agent.ToolsetDeps{
		Sandbox:   deps.sandbox,
		Store:     deps.store,
		Snapshots: deps.snapshots,
		Modules:   br,
		Journal:   deps.journal,
		Notify:    hub.Broadcast,
	})

	runner, err := newRunner(cfg.Agent)
	if err != nil {
		return err
	}
	defer runner.Close()

	var mcpToken string
	if cfg.Auth.Secret != "" {
		mcpToken, err = auth.IssueToken(cfg.Auth.Secret, "agent", auth.RoleOperator, cfg.Auth.TokenTTL)
		if err != nil {
			return err
		}
	}

	sessions := agent.NewSessionManager(ctx, agent.SessionOptions{
		Runner: runner,
		Command: agent.CommandOptions{
			Command:      cfg.Agent.Command,
			Model:        cfg.Agent.Model,
			MaxTurns:     cfg.Agent.MaxTurns,
			MCPURL:       cfg.Agent.MCPURL,
			MCPToken:     mcpToken,
			GeneratedDir: cfg.Workspace.GeneratedDir,
		},
		WorkDir:  deps.sandbox.Root(),
		Notify:   hub.Broadcast,
		Notifier: newNotifier(cfg.Slack),
	})
	defer sessions.Close()

	w, err := watcher.New(deps.store)
	if err != nil {
		return err
	}
	p = pipeline.New(pipeline.Options{
		Watcher:       w,
		Bridge:        br,
		World:         world,
		Relay:         hub,
		Agent:         sessions,
		RelPath:       deps.sandbox.Rel,
		TickRate:      cfg.Runtime.TickRate,
		DeltaThrottle: cfg.Runtime.DeltaThrottle,
	})

	mcpSrv := mcptools.New(tools, mcptools.Options{Version: version, GeneratedDir: cfg.Workspace.GeneratedDir})
	srv := server.New(ctx, cfg, server.Deps{
		Hub:     hub,
		Tools:   tools,
		Modules: br,
		Agent:   sessions,
		Journal: deps.journal,
		MCP:     mcpSrv.Handler(),
		Version: version,
	})

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("root", deps.sandbox.Root()).
		Str("generated", deps.store.Dir()).
		Str("runner", cfg.Agent.Runner).
		Bool("auth", cfg.Auth.Secret != "").
		Bool("backplane", hubOpts.Backplane != nil).
		Msg("vrcreator: serving")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return p.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("vrcreator: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newNotifier returns nil unless a Slack bot token and channel are set.
func newNotifier(cfg config.SlackConfig) *notify.Notifier {
	if cfg.BotToken == "" || cfg.Channel == "" {
		return nil
	}
	return notify.New(notify.Target{Messenger: slack.New(cfg.BotToken), Channel: cfg.Channel})
}
