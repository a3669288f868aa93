package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/api/ws"
	"github.com/gosuda/vrcreator/internal/config"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/store/postgres"
	redisstore "github.com/gosuda/vrcreator/internal/store/redis"
	"github.com/gosuda/vrcreator/internal/store/snapshot"
	"github.com/gosuda/vrcreator/internal/store/sqlite"
	"github.com/gosuda/vrcreator/internal/workspace"
)

// workspaceDeps is the file-side state shared by serve and mcp.
type workspaceDeps struct {
	sandbox   *workspace.Sandbox
	store     *workspace.Store
	snapshots *snapshot.Store
	journal   domain.ToolCallRepository
}

func (d *workspaceDeps) Close() error {
	if d.journal == nil {
		return nil
	}
	return d.journal.Close()
}

func openWorkspace(ctx context.Context, cfg *config.Config) (*workspaceDeps, error) {
	wc := cfg.Workspace
	sandbox, err := workspace.NewSandbox(wc.ProjectRoot, wc.GeneratedDir, wc.AssetsDir)
	if err != nil {
		return nil, err
	}
	store, err := workspace.NewStore(wc.GeneratedPath(), wc.ModuleExt)
	if err != nil {
		return nil, err
	}
	snapshots, err := snapshot.New(wc.SnapshotsPath())
	if err != nil {
		return nil, err
	}
	journal, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return nil, err
	}
	return &workspaceDeps{sandbox: sandbox, store: store, snapshots: snapshots, journal: journal}, nil
}

// openJournal uses Postgres when a DSN is configured and SQLite otherwise.
func openJournal(ctx context.Context, cfg config.JournalConfig) (domain.ToolCallRepository, error) {
	if cfg.DSN == "" {
		j, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return j, nil
	}
	pg, err := postgres.New(ctx, cfg.DSN, 0)
	if err != nil {
		return nil, err
	}
	return &pgJournal{ToolCallRepository: pg.ToolCalls(), store: pg}, nil
}

// pgJournal closes the pool along with the repository.
type pgJournal struct {
	domain.ToolCallRepository
	store *postgres.Store
}

func (j *pgJournal) Close() error {
	j.store.Close()
	return nil
}

// relayOptions fills the backplane fields when Redis is configured. The
// returned close func is never nil.
func relayOptions(ctx context.Context, cfg *config.Config) (ws.Options, func(), error) {
	opts := ws.Options{
		ClientBuffer:   cfg.Relay.ClientBuffer,
		MaxClients:     cfg.Relay.MaxClients,
		OriginPatterns: originPatterns(cfg.Server.CORSOrigins),
	}
	if cfg.Relay.RedisAddr == "" {
		return opts, func() {}, nil
	}
	ps, err := redisstore.New(ctx, cfg.Relay.RedisAddr, cfg.Relay.RedisPassword, cfg.Relay.RedisDB)
	if err != nil {
		return ws.Options{}, nil, fmt.Errorf("relay backplane: %w", err)
	}
	opts.Backplane = ps
	opts.Channel = redisstore.RelayChannel(cfg.Relay.Channel)
	return opts, func() { _ = ps.Close() }, nil
}

// originPatterns turns CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}

// localMCPURL is the MCP endpoint a local agent reaches for a listen address.
func localMCPURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost" + addr + "/mcp"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/mcp"
}

func newRunner(cfg config.AgentConfig) (agent.Runner, error) {
	switch strings.ToLower(cfg.Runner) {
	case "docker":
		return agent.NewDockerRunner(cfg.DockerHost, cfg.DockerImage, cfg.DockerCPU, cfg.DockerMemory)
	default:
		return agent.NewLocalRunner(), nil
	}
}
