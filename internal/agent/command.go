package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gosuda/vrcreator/internal/domain"
)

// MCPServerName is the name our tools are registered under in the agent's
// MCP config; the CLI prefixes tool names with mcp__<name>__.
const MCPServerName = "vrcreator"

// CommandOptions configures the agent CLI invocation.
type CommandOptions struct {
	Command  string
	Model    string
	MaxTurns int
	MCPURL   string
	MCPToken string //nolint:gosec // G117: bearer token passed to the agent
	// GeneratedDir is the project-relative module directory named in the
	// system prompt.
	GeneratedDir string
}

// ModuleGuide describes the module contract to the agent. It is appended to
// the system prompt and served as an MCP resource.
const ModuleGuide = `Scene content lives in Go source files under {{dir}}. One file is one module;
the file name without ".go" is the module key. Create or replace a module with
write_file, remove it with delete_file. Every change is hot-reloaded: the old
instance is torn down before the new one runs.

Each module is its own package and exports a Load function:

    package crate

    import "creator/scene"

    func Load(rt *scene.Runtime) error {
        box, err := rt.Box(scene.MeshSpec{Name: "crate", Size: scene.V(1, 1, 1), Color: "#a0522d", Position: scene.V(0, 0.5, -2)})
        if err != nil {
            return err
        }
        return rt.Attach(box, scene.Body{Type: "dynamic", Mass: 2})
    }

Everything created through rt (Box, Sphere, Plane, Label, Light, Model, Group,
Every, After, OnFrame, On) is owned by the module and cleaned up automatically.
Only the Go standard library packages fmt, math, math/rand, strings, strconv,
sort, time, errors, bytes, encoding/json and unicode may be imported.
If a load fails, scene_status reports the error; fix the file and write it again.`

// Guide renders ModuleGuide for a module directory.
func Guide(generatedDir string) string {
	return strings.ReplaceAll(ModuleGuide, "{{dir}}", generatedDir)
}

// MCPConfig returns the inline --mcp-config JSON pointing the agent at our
// streamable HTTP endpoint.
func MCPConfig(url, token string) (string, error) {
	server := map[string]any{"type": "http", "url": url}
	if token != "" {
		server["headers"] = map[string]string{"Authorization": "Bearer " + token}
	}
	raw, err := json.Marshal(map[string]any{
		"mcpServers": map[string]any{MCPServerName: server},
	})
	if err != nil {
		return "", fmt.Errorf("agent.MCPConfig: %w", err)
	}
	return string(raw), nil
}

// BuildCommand returns the argv for one headless agent turn.
func BuildCommand(opts CommandOptions, prompt string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("agent.BuildCommand: %w", domain.ErrEmptyPrompt)
	}
	mcpConfig, err := MCPConfig(opts.MCPURL, opts.MCPToken)
	if err != nil {
		return nil, err
	}
	command := opts.Command
	if command == "" {
		command = "claude"
	}
	args := []string{
		command,
		"-p", prompt,
		"--output-format", "stream-json",
		"--verbose",
		"--mcp-config", mcpConfig,
		"--allowedTools", "mcp__" + MCPServerName,
		"--append-system-prompt", Guide(opts.GeneratedDir),
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	return args, nil
}
