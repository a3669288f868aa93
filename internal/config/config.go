package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Workspace WorkspaceConfig
	Runtime   RuntimeConfig
	Relay     RelayConfig
	Agent     AgentConfig
	Auth      AuthConfig
	Journal   JournalConfig
	Slack     SlackConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	WebDir       string // static client bundle; empty disables the fallback
}

// WorkspaceConfig holds the on-disk layout. GeneratedDir and AssetsDir are
// the only roots the agent may write to.
type WorkspaceConfig struct {
	ProjectRoot  string
	GeneratedDir string
	AssetsDir    string
	SnapshotsDir string
	ModuleExt    string
}

// RuntimeConfig holds module execution settings.
type RuntimeConfig struct {
	ExecTimeout   time.Duration // zero means unbounded; Abort still works
	TickRate      time.Duration
	DeltaThrottle time.Duration
}

// RelayConfig holds event relay settings.
type RelayConfig struct {
	ClientBuffer  int
	MaxClients    int
	RedisAddr     string // empty disables the cross-process backplane
	RedisPassword string //nolint:gosec // G117: Redis connection config
	RedisDB       int
	Channel       string
}

// AgentConfig holds agent CLI settings.
type AgentConfig struct {
	Runner       string // "local" or "docker"
	Command      string
	Model        string
	MaxTurns     int
	MCPURL       string
	DockerHost   string
	DockerImage  string
	DockerCPU    string
	DockerMemory string
}

// AuthConfig holds optional JWT settings. An empty secret disables auth.
type AuthConfig struct {
	Secret   string //nolint:gosec // G117: JWT signing secret config
	TokenTTL time.Duration
}

// JournalConfig selects the tool-call journal backend. An empty DSN uses
// SQLite at Path.
type JournalConfig struct {
	DSN  string
	Path string
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// RateLimitConfig holds per-IP request limits for /api and /mcp.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// LogConfig selects the zerolog level and output format ("json" or "text").
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("VRC_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("VRC_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	execTimeout, err := getEnvDuration("VRC_EXEC_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tickRate, err := getEnvDuration("VRC_TICK_RATE", time.Second/30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	throttle, err := getEnvDuration("VRC_DELTA_THROTTLE", 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	clientBuffer, err := getEnvInt("VRC_RELAY_CLIENT_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxClients, err := getEnvInt("VRC_RELAY_MAX_CLIENTS", 64)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("VRC_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTurns, err := getEnvInt("VRC_AGENT_MAX_TURNS", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tokenTTL, err := getEnvDuration("VRC_AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("VRC_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("VRC_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	root := getEnv("VRC_PROJECT_ROOT", ".")
	addr := getEnv("VRC_SERVER_ADDR", ":8080")

	cfg := &Config{
		Server: ServerConfig{
			Addr:         addr,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("VRC_CORS_ORIGINS", []string{"http://localhost:5173"}),
			WebDir:       getEnv("VRC_WEB_DIR", ""),
		},
		Workspace: WorkspaceConfig{
			ProjectRoot:  root,
			GeneratedDir: getEnv("VRC_GENERATED_DIR", "src/generated"),
			AssetsDir:    getEnv("VRC_ASSETS_DIR", "public/models"),
			SnapshotsDir: getEnv("VRC_SNAPSHOTS_DIR", ".scenes"),
			ModuleExt:    getEnv("VRC_MODULE_EXT", ".go"),
		},
		Runtime: RuntimeConfig{
			ExecTimeout:   execTimeout,
			TickRate:      tickRate,
			DeltaThrottle: throttle,
		},
		Relay: RelayConfig{
			ClientBuffer:  clientBuffer,
			MaxClients:    maxClients,
			RedisAddr:     getEnv("VRC_REDIS_ADDR", ""),
			RedisPassword: getEnv("VRC_REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
			Channel:       getEnv("VRC_RELAY_CHANNEL", "default"),
		},
		Agent: AgentConfig{
			Runner:       getEnv("VRC_AGENT_RUNNER", "local"),
			Command:      getEnv("VRC_AGENT_COMMAND", "claude"),
			Model:        getEnv("VRC_AGENT_MODEL", ""),
			MaxTurns:     maxTurns,
			MCPURL:       getEnv("VRC_AGENT_MCP_URL", "http://localhost"+addr+"/mcp"),
			DockerHost:   getEnv("VRC_DOCKER_HOST", "unix:///var/run/docker.sock"),
			DockerImage:  getEnv("VRC_DOCKER_IMAGE", "ghcr.io/gosuda/vrcreator-agent:latest"),
			DockerCPU:    getEnv("VRC_DOCKER_CPU_LIMIT", "2"),
			DockerMemory: getEnv("VRC_DOCKER_MEM_LIMIT", "2g"),
		},
		Auth: AuthConfig{
			Secret:   getEnv("VRC_AUTH_SECRET", ""),
			TokenTTL: tokenTTL,
		},
		Journal: JournalConfig{
			DSN:  getEnv("VRC_JOURNAL_DSN", ""),
			Path: getEnv("VRC_JOURNAL_PATH", filepath.Join(".vrcreator", "journal.db")),
		},
		Slack: SlackConfig{
			BotToken: getEnv("VRC_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("VRC_SLACK_CHANNEL", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("VRC_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("VRC_LOG_FORMAT", "json")),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Auth.Secret != "" && len(c.Auth.Secret) < 32 {
		return errors.New("VRC_AUTH_SECRET must be at least 32 characters")
	}
	if c.Auth.Secret == "" {
		log.Warn().Msg("VRC_AUTH_SECRET is unset; /api, /ws and /mcp are unauthenticated")
	}

	if !strings.HasPrefix(c.Workspace.ModuleExt, ".") || len(c.Workspace.ModuleExt) < 2 {
		return fmt.Errorf("VRC_MODULE_EXT must look like \".go\", got %q", c.Workspace.ModuleExt)
	}
	for _, d := range []struct{ key, val string }{
		{"VRC_GENERATED_DIR", c.Workspace.GeneratedDir},
		{"VRC_ASSETS_DIR", c.Workspace.AssetsDir},
	} {
		if d.val == "" || filepath.IsAbs(d.val) || strings.HasPrefix(filepath.Clean(d.val), "..") {
			return fmt.Errorf("%s must be a relative path inside the project root, got %q", d.key, d.val)
		}
	}
	if filepath.Clean(c.Workspace.GeneratedDir) == filepath.Clean(c.Workspace.AssetsDir) {
		return errors.New("VRC_GENERATED_DIR and VRC_ASSETS_DIR must differ")
	}

	if c.Runtime.ExecTimeout < 0 {
		return fmt.Errorf("VRC_EXEC_TIMEOUT must be >= 0, got %s", c.Runtime.ExecTimeout)
	}
	if c.Runtime.TickRate <= 0 {
		return fmt.Errorf("VRC_TICK_RATE must be positive, got %s", c.Runtime.TickRate)
	}
	if c.Runtime.DeltaThrottle < 0 {
		return fmt.Errorf("VRC_DELTA_THROTTLE must be >= 0, got %s", c.Runtime.DeltaThrottle)
	}
	if c.Relay.ClientBuffer < 1 {
		return fmt.Errorf("VRC_RELAY_CLIENT_BUFFER must be >= 1, got %d", c.Relay.ClientBuffer)
	}
	if c.Relay.MaxClients < 0 {
		return fmt.Errorf("VRC_RELAY_MAX_CLIENTS must be >= 0, got %d", c.Relay.MaxClients)
	}
	if c.Agent.Runner != "local" && c.Agent.Runner != "docker" {
		return fmt.Errorf("VRC_AGENT_RUNNER must be local or docker, got %q", c.Agent.Runner)
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("VRC_AGENT_MAX_TURNS must be >= 1, got %d", c.Agent.MaxTurns)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("VRC_AUTH_TOKEN_TTL must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Journal.DSN != "" && !strings.HasPrefix(c.Journal.DSN, "postgres://") && !strings.HasPrefix(c.Journal.DSN, "postgresql://") {
		return errors.New("VRC_JOURNAL_DSN must be a postgres:// URL")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("VRC_RATE_LIMIT_RPS must be positive, got %g", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		return fmt.Errorf("VRC_RATE_LIMIT_BURST must be >= 1, got %d", c.RateLimit.Burst)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("VRC_LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("VRC_LOG_LEVEL: %w", err)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("VRC_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("VRC_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// GeneratedPath returns the absolute-or-root-relative Generated Module Store.
func (c *WorkspaceConfig) GeneratedPath() string {
	return filepath.Join(c.ProjectRoot, c.GeneratedDir)
}

// AssetsPath returns the second writable root.
func (c *WorkspaceConfig) AssetsPath() string {
	return filepath.Join(c.ProjectRoot, c.AssetsDir)
}

// SnapshotsPath resolves SnapshotsDir against the project root unless absolute.
func (c *WorkspaceConfig) SnapshotsPath() string {
	if filepath.IsAbs(c.SnapshotsDir) {
		return c.SnapshotsDir
	}
	return filepath.Join(c.ProjectRoot, c.SnapshotsDir)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
