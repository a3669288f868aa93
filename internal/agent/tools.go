package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/workspace"
)

// Tool names as exposed to the agent.
const (
	ToolWriteFile       = "write_file"
	ToolReadFile        = "read_file"
	ToolDeleteFile      = "delete_file"
	ToolClearScene      = "clear_scene"
	ToolSaveScene       = "save_scene"
	ToolLoadScene       = "load_scene"
	ToolListSavedScenes = "list_saved_scenes"
	ToolListFiles       = "list_files"
	ToolSceneStatus     = "scene_status"
	ToolAbortModule     = "abort_module"
)

// ModuleLister reports the bridge's view of every module. It is optional: a
// process without a bridge (the stdio MCP server) has no live modules.
type ModuleLister interface {
	Modules() []domain.GeneratedModule
}

// ModuleAborter cancels a module's in-flight load. The bridge implements it
// alongside ModuleLister.
type ModuleAborter interface {
	Abort(key string) bool
}

// ToolsetDeps contains everything the tool layer touches.
type ToolsetDeps struct {
	Sandbox   *workspace.Sandbox
	Store     *workspace.Store
	Snapshots domain.SnapshotRepository
	Modules   ModuleLister              // may be nil
	Journal   domain.ToolCallRepository // may be nil
	Notify    func(domain.Event)        // may be nil
}

// Toolset implements the agent-facing file and scene operations. Its effect
// on the scene is indirect: it only changes files, and the watcher pipeline
// does the rest.
type Toolset struct {
	deps ToolsetDeps
}

func NewToolset(deps ToolsetDeps) *Toolset {
	if deps.Notify == nil {
		deps.Notify = func(domain.Event) {}
	}
	return &Toolset{deps: deps}
}

// Summarizer is implemented by tool results that can describe themselves in
// one line for tool_use_complete events.
type Summarizer interface {
	Summary() string
}

// ToolError is the structured failure returned to the agent.
type ToolError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// FailureOf converts err into the agent-facing failure shape.
func FailureOf(err error) ToolError {
	return ToolError{Error: domain.ErrorCode(err), Message: err.Error()}
}

// Call runs one tool invocation: it announces the call on the relay, runs fn,
// reports success or failure, and appends a journal entry. source is "mcp" or
// "http". Journal errors are logged and never fail the call.
func (t *Toolset) Call(ctx context.Context, source, tool string, input map[string]any, fn func(context.Context) (any, error)) (any, error) {
	start := time.Now()
	t.deps.Notify(domain.ToolUseStartEvent(tool, input))

	result, err := fn(ctx)

	entry := &domain.ToolCall{
		ID:         uuid.New(),
		Tool:       tool,
		Source:     source,
		OK:         err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		CreatedAt:  start.UTC(),
	}
	if raw, mErr := json.Marshal(redact(input)); mErr == nil {
		entry.Input = raw
	}

	if err != nil {
		entry.ErrorCode = domain.ErrorCode(err)
		entry.Message = err.Error()
		t.deps.Notify(domain.ToolUseFailedEvent(tool, entry.ErrorCode+": "+err.Error()))
		log.Warn().Err(err).Str("tool", tool).Str("source", source).Msg("agent.Toolset.Call: tool failed")
	} else {
		msg := "ok"
		if s, ok := result.(Summarizer); ok {
			msg = s.Summary()
		}
		entry.Message = msg
		t.deps.Notify(domain.ToolUseCompleteEvent(tool, msg))
	}

	if t.deps.Journal != nil {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if jErr := t.deps.Journal.Append(jctx, entry); jErr != nil {
			log.Error().Err(jErr).Str("tool", tool).Msg("agent.Toolset.Call: journal append")
		}
		cancel()
	}

	return result, err
}

// redact drops large content fields from journaled input.
func redact(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		if s, ok := v.(string); ok && k == "content" {
			out[k] = fmt.Sprintf("<%d bytes>", len(s))
			continue
		}
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytesWritten"`
}

func (r WriteResult) Summary() string {
	return fmt.Sprintf("wrote %d bytes to %s", r.BytesWritten, r.Path)
}

type ReadResult struct {
	Path     string    `json:"path"`
	Content  string    `json:"content"`
	Size     int64     `json:"size"`
	Lines    int       `json:"lines"`
	Modified time.Time `json:"modified"`
}

func (r ReadResult) Summary() string {
	return fmt.Sprintf("read %s (%d lines)", r.Path, r.Lines)
}

type DeleteResult struct {
	Deleted string `json:"deleted"`
}

func (r DeleteResult) Summary() string { return "deleted " + r.Deleted }

type ClearResult struct {
	FilesDeleted int `json:"filesDeleted"`
}

func (r ClearResult) Summary() string {
	return fmt.Sprintf("cleared %d files", r.FilesDeleted)
}

type SaveResult struct {
	SessionID  string   `json:"sessionId"`
	Name       string   `json:"name"`
	FileCount  int      `json:"fileCount"`
	SavedFiles []string `json:"savedFiles"`
}

func (r SaveResult) Summary() string {
	return fmt.Sprintf("saved %d files as %s", r.FileCount, r.Name)
}

type LoadResult struct {
	SessionID   string   `json:"sessionId"`
	Name        string   `json:"name"`
	FileCount   int      `json:"fileCount"`
	LoadedFiles []string `json:"loadedFiles"`
}

func (r LoadResult) Summary() string {
	return fmt.Sprintf("loaded %d files from %s", r.FileCount, r.Name)
}

type SceneList struct {
	SessionID string                   `json:"sessionId"`
	Scenes    []domain.SnapshotSummary `json:"scenes"`
}

func (r SceneList) Summary() string { return fmt.Sprintf("%d saved scenes", len(r.Scenes)) }

type FileList struct {
	Files []workspace.FileInfo `json:"files"`
}

func (r FileList) Summary() string { return fmt.Sprintf("%d files", len(r.Files)) }

type SceneStatus struct {
	Modules []domain.GeneratedModule `json:"modules"`
}

func (r SceneStatus) Summary() string {
	failed := 0
	for _, m := range r.Modules {
		if m.Status == domain.ModuleStatusFailed {
			failed++
		}
	}
	return fmt.Sprintf("%d modules, %d failed", len(r.Modules), failed)
}

type AbortResult struct {
	Key     string `json:"key"`
	Aborted bool   `json:"aborted"`
}

func (r AbortResult) Summary() string {
	if r.Aborted {
		return "aborted load of " + r.Key
	}
	return "no load in flight for " + r.Key
}

// ---------------------------------------------------------------------------
// Operations
// ---------------------------------------------------------------------------

// WriteFile writes content to path, creating parent directories. The path is
// resolved against the project root and must land inside an allowed root.
func (t *Toolset) WriteFile(_ context.Context, path, content string) (WriteResult, error) {
	abs, err := t.deps.Sandbox.Resolve(path)
	if err != nil {
		return WriteResult{}, fmt.Errorf("agent.Toolset.WriteFile: %w", err)
	}
	if err := workspace.WriteFileAtomic(abs, []byte(content)); err != nil {
		return WriteResult{}, fmt.Errorf("agent.Toolset.WriteFile: %w", err)
	}
	return WriteResult{Path: t.deps.Sandbox.Rel(abs), BytesWritten: len(content)}, nil
}

// ReadFile returns the file content with size, line count and mtime.
func (t *Toolset) ReadFile(_ context.Context, path string) (ReadResult, error) {
	abs, err := t.deps.Sandbox.Resolve(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("agent.Toolset.ReadFile: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ReadResult{}, fmt.Errorf("agent.Toolset.ReadFile %s: %w", path, domain.ErrNotFound)
		}
		return ReadResult{}, fmt.Errorf("agent.Toolset.ReadFile: %w", err)
	}
	if info.IsDir() {
		return ReadResult{}, fmt.Errorf("agent.Toolset.ReadFile %s is a directory: %w", path, domain.ErrNotFound)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return ReadResult{}, fmt.Errorf("agent.Toolset.ReadFile: %w", err)
	}
	return ReadResult{
		Path:     t.deps.Sandbox.Rel(abs),
		Content:  string(data),
		Size:     info.Size(),
		Lines:    countLines(data),
		Modified: info.ModTime(),
	}, nil
}

func countLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// DeleteFile removes a file. A bare name refers to the generated module
// store; a relative path is resolved like WriteFile. Traversal segments are
// rejected before any lookup.
func (t *Toolset) DeleteFile(_ context.Context, name string) (DeleteResult, error) {
	if name == "" || slices.Contains(strings.FieldsFunc(name, isSep), "..") {
		return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile %q: %w", name, domain.ErrInvalidName)
	}
	target := name
	if !strings.ContainsAny(name, `/\`) {
		target = t.deps.Store.Path(name)
	}
	abs, err := t.deps.Sandbox.Resolve(target)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile: %w", err)
	}
	info, err := os.Lstat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile %s: %w", name, domain.ErrNotFound)
		}
		return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile: %w", err)
	}
	if info.IsDir() {
		return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile %s is a directory: %w", name, domain.ErrInvalidName)
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile %s: %w", name, domain.ErrNotFound)
		}
		return DeleteResult{}, fmt.Errorf("agent.Toolset.DeleteFile: %w", err)
	}
	return DeleteResult{Deleted: t.deps.Sandbox.Rel(abs)}, nil
}

func isSep(r rune) bool { return r == '/' || r == '\\' }

// ClearScene deletes every module file. It refuses to run without confirm.
func (t *Toolset) ClearScene(_ context.Context, confirm bool) (ClearResult, error) {
	if !confirm {
		return ClearResult{}, fmt.Errorf("agent.Toolset.ClearScene: %w", domain.ErrConfirmationRequired)
	}
	n, err := t.deps.Store.Clear()
	if err != nil {
		return ClearResult{FilesDeleted: n}, fmt.Errorf("agent.Toolset.ClearScene: %w", err)
	}
	return ClearResult{FilesDeleted: n}, nil
}

// SaveScene copies the module store into a named snapshot.
func (t *Toolset) SaveScene(ctx context.Context, sessionID, name string) (SaveResult, error) {
	if !domain.ValidName(sessionID) || !domain.ValidName(name) {
		return SaveResult{}, fmt.Errorf("agent.Toolset.SaveScene %q/%q: %w", sessionID, name, domain.ErrInvalidName)
	}
	files, err := t.deps.Store.ReadAll()
	if err != nil {
		return SaveResult{}, fmt.Errorf("agent.Toolset.SaveScene: %w", err)
	}
	snap, err := t.deps.Snapshots.Save(ctx, sessionID, name, files)
	if err != nil {
		return SaveResult{}, fmt.Errorf("agent.Toolset.SaveScene: %w", err)
	}
	return SaveResult{SessionID: sessionID, Name: name, FileCount: snap.FileCount, SavedFiles: snap.Files}, nil
}

// LoadScene replaces the module store with a snapshot's files. The snapshot
// is read fully before anything is cleared.
func (t *Toolset) LoadScene(ctx context.Context, sessionID, name string) (LoadResult, error) {
	if !domain.ValidName(sessionID) || !domain.ValidName(name) {
		return LoadResult{}, fmt.Errorf("agent.Toolset.LoadScene %q/%q: %w", sessionID, name, domain.ErrInvalidName)
	}
	_, files, err := t.deps.Snapshots.Load(ctx, sessionID, name)
	if err != nil {
		return LoadResult{}, fmt.Errorf("agent.Toolset.LoadScene: %w", err)
	}
	if _, err := t.deps.Store.Clear(); err != nil {
		return LoadResult{}, fmt.Errorf("agent.Toolset.LoadScene: clear: %w", err)
	}

	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	slices.Sort(names)
	for _, n := range names {
		if err := workspace.WriteFileAtomic(t.deps.Store.Path(n), files[n]); err != nil {
			return LoadResult{}, fmt.Errorf("agent.Toolset.LoadScene: write %s: %w", n, err)
		}
	}
	return LoadResult{SessionID: sessionID, Name: name, FileCount: len(names), LoadedFiles: names}, nil
}

// ListSavedScenes lists a session's snapshots, newest first.
func (t *Toolset) ListSavedScenes(ctx context.Context, sessionID string) (SceneList, error) {
	if !domain.ValidName(sessionID) {
		return SceneList{}, fmt.Errorf("agent.Toolset.ListSavedScenes %q: %w", sessionID, domain.ErrInvalidName)
	}
	scenes, err := t.deps.Snapshots.List(ctx, sessionID)
	if err != nil {
		return SceneList{}, fmt.Errorf("agent.Toolset.ListSavedScenes: %w", err)
	}
	if scenes == nil {
		scenes = []domain.SnapshotSummary{}
	}
	return SceneList{SessionID: sessionID, Scenes: scenes}, nil
}

// ListFiles lists the module store.
func (t *Toolset) ListFiles(_ context.Context) (FileList, error) {
	files, err := t.deps.Store.List()
	if err != nil {
		return FileList{}, fmt.Errorf("agent.Toolset.ListFiles: %w", err)
	}
	for i := range files {
		files[i].Path = t.deps.Sandbox.Rel(files[i].Path)
	}
	return FileList{Files: files}, nil
}

// SceneStatus reports the live module states.
func (t *Toolset) SceneStatus(_ context.Context) (SceneStatus, error) {
	if t.deps.Modules == nil {
		return SceneStatus{Modules: []domain.GeneratedModule{}}, nil
	}
	mods := t.deps.Modules.Modules()
	if mods == nil {
		mods = []domain.GeneratedModule{}
	}
	return SceneStatus{Modules: mods}, nil
}

// AbortModule cancels the in-flight load of a module that never returns. The
// module is marked failed and its next write loads normally. name may be a
// key or a module file name.
func (t *Toolset) AbortModule(_ context.Context, name string) (AbortResult, error) {
	key := domain.ModuleKey(strings.TrimSpace(name))
	if key == "" || key == "." || key == "/" {
		return AbortResult{}, fmt.Errorf("agent.Toolset.AbortModule %q: %w", name, domain.ErrInvalidName)
	}
	aborter, ok := t.deps.Modules.(ModuleAborter)
	if !ok {
		return AbortResult{Key: key}, nil
	}
	return AbortResult{Key: key, Aborted: aborter.Abort(key)}, nil
}

// GeneratedPath returns the project-relative path of a module file, the form
// the agent is told to use with write_file.
func (t *Toolset) GeneratedPath(name string) string {
	return t.deps.Sandbox.Rel(filepath.Join(t.deps.Store.Dir(), name))
}
