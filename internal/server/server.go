// Package server wires the HTTP surface: the huma API, the relay endpoints,
// the MCP endpoint and the static client bundle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/agent"
	v1 "github.com/gosuda/vrcreator/internal/api/v1"
	"github.com/gosuda/vrcreator/internal/api/ws"
	"github.com/gosuda/vrcreator/internal/auth"
	"github.com/gosuda/vrcreator/internal/config"
	"github.com/gosuda/vrcreator/internal/server/middleware"
)

// Deps holds the components the routes serve. Agent, Journal and MCP may be
// nil.
type Deps struct {
	Hub     *ws.Hub
	Tools   *agent.Toolset
	Modules v1.ModuleController
	Agent   v1.AgentController
	Journal v1.JournalReader
	MCP     http.Handler
	Version string
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server with all routes wired. ctx bounds background work
// such as rate-limiter cleanup.
func New(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Mcp-Session-Id", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:    cfg.Server.Addr,
			Handler: router,
			// Only headers are bounded here: /ws and /events stay open for
			// the life of a client. API handlers get chi's Timeout.
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		},
	}

	authn := middleware.Auth(cfg.Auth.Secret)
	limit := middleware.RateLimitByIP(ctx, cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	operator := middleware.RequireRole(auth.RoleOperator)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(authn)
		r.Use(limit)
		r.Use(middleware.RequireRoleForWrites(auth.RoleOperator))
		r.Use(chimw.Timeout(cfg.Server.WriteTimeout))

		apiConfig := huma.DefaultConfig("vrcreator API", deps.Version)
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, deps)
	})

	// Relay: a viewer may watch over SSE; the WebSocket also carries
	// prompts and evals, so it needs an operator.
	router.With(authn, operator).Get("/ws", deps.Hub.ServeWS)
	router.With(authn).Get("/events", deps.Hub.ServeSSE)

	if deps.MCP != nil {
		router.With(authn, limit, operator).Handle("/mcp", deps.MCP)
	}

	// Health check (unauthenticated).
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","clients":%d}`, deps.Hub.ClientCount())
	})

	// The client bundle answers everything else. Registered last so the
	// routes above take priority.
	if cfg.Server.WebDir != "" {
		router.NotFound(staticFileServer(os.DirFS(cfg.Server.WebDir)).ServeHTTP)
		log.Info().Str("dir", cfg.Server.WebDir).Msg("server: serving web client")
	}

	return s
}

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterFileRoutes(api, deps.Tools)
	v1.RegisterSceneRoutes(api, deps.Tools)
	v1.RegisterModuleRoutes(api, deps.Modules)
	v1.RegisterAgentRoutes(api, deps.Agent)
	v1.RegisterJournalRoutes(api, deps.Journal)
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
