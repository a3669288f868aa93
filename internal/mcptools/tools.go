package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gosuda/vrcreator/internal/agent"
)

// Tools returns every tool definition with its handler.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: writeFileTool(s.opts.GeneratedDir), Handler: s.handleWriteFile},
		{Tool: readFileTool(), Handler: s.handleReadFile},
		{Tool: deleteFileTool(), Handler: s.handleDeleteFile},
		{Tool: clearSceneTool(), Handler: s.handleClearScene},
		{Tool: saveSceneTool(), Handler: s.handleSaveScene},
		{Tool: loadSceneTool(), Handler: s.handleLoadScene},
		{Tool: listSavedScenesTool(), Handler: s.handleListSavedScenes},
		{Tool: listFilesTool(), Handler: s.handleListFiles},
		{Tool: sceneStatusTool(), Handler: s.handleSceneStatus},
		{Tool: abortModuleTool(), Handler: s.handleAbortModule},
	}
}

func writeFileTool(dir string) mcp.Tool {
	return mcp.NewTool(agent.ToolWriteFile,
		mcp.WithDescription(
			"Create or overwrite a file. Module files go under "+dir+" and are hot-reloaded into the scene as soon as they are written. "+
				"Paths are relative to the project root; anything outside the module and asset directories is rejected.",
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Project-relative path, e.g. "+dir+"/crate.go"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Full file content"),
		),
	)
}

func readFileTool() mcp.Tool {
	return mcp.NewTool(agent.ToolReadFile,
		mcp.WithDescription("Read a file with its size, line count and modification time."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Project-relative path"),
		),
	)
}

func deleteFileTool() mcp.Tool {
	return mcp.NewTool(agent.ToolDeleteFile,
		mcp.WithDescription("Delete a file. A bare file name refers to the module directory. Deleting a module removes everything it created from the scene."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("fileName",
			mcp.Required(),
			mcp.Description("Module file name (crate.go) or project-relative path"),
		),
	)
}

func clearSceneTool() mcp.Tool {
	return mcp.NewTool(agent.ToolClearScene,
		mcp.WithDescription("Delete every module file, emptying the scene. Requires confirm=true."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithBoolean("confirm",
			mcp.Required(),
			mcp.Description("Must be true"),
		),
	)
}

func saveSceneTool() mcp.Tool {
	return mcp.NewTool(agent.ToolSaveScene,
		mcp.WithDescription("Save all current module files as a named scene snapshot."),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session the snapshot belongs to (letters, digits, - and _)"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Snapshot name (letters, digits, - and _)"),
		),
	)
}

func loadSceneTool() mcp.Tool {
	return mcp.NewTool(agent.ToolLoadScene,
		mcp.WithDescription("Replace all module files with a saved snapshot. The current scene is cleared first."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session the snapshot belongs to"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Snapshot name"),
		),
	)
}

func listSavedScenesTool() mcp.Tool {
	return mcp.NewTool(agent.ToolListSavedScenes,
		mcp.WithDescription("List saved scene snapshots for a session, newest first."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("sessionId",
			mcp.Required(),
			mcp.Description("Session id"),
		),
	)
}

func listFilesTool() mcp.Tool {
	return mcp.NewTool(agent.ToolListFiles,
		mcp.WithDescription("List module files with size and modification time."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func sceneStatusTool() mcp.Tool {
	return mcp.NewTool(agent.ToolSceneStatus,
		mcp.WithDescription("Report each module's load status, generation, last error and entity count. Check this after writing a module."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func abortModuleTool() mcp.Tool {
	return mcp.NewTool(agent.ToolAbortModule,
		mcp.WithDescription("Cancel a module load that is stuck, for example in an endless loop. The module is marked failed; write a fixed version afterwards."),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Module key or file name, e.g. crate or crate.go"),
		),
	)
}

func (s *Server) handleWriteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	content := req.GetString("content", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.WriteFile(ctx, path, content)
	})
}

func (s *Server) handleReadFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.ReadFile(ctx, path)
	})
}

func (s *Server) handleDeleteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("fileName", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.DeleteFile(ctx, name)
	})
}

func (s *Server) handleClearScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	confirm := req.GetBool("confirm", false)
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.ClearScene(ctx, confirm)
	})
}

func (s *Server) handleSaveScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("sessionId", "")
	name := req.GetString("name", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.SaveScene(ctx, sessionID, name)
	})
}

func (s *Server) handleLoadScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("sessionId", "")
	name := req.GetString("name", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.LoadScene(ctx, sessionID, name)
	})
}

func (s *Server) handleListSavedScenes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := req.GetString("sessionId", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.ListSavedScenes(ctx, sessionID)
	})
}

func (s *Server) handleListFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.ListFiles(ctx)
	})
}

func (s *Server) handleSceneStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.SceneStatus(ctx)
	})
}

func (s *Server) handleAbortModule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := req.GetString("key", "")
	return s.call(ctx, req, func(ctx context.Context) (any, error) {
		return s.tools.AbortModule(ctx, key)
	})
}
