package v1_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/vrcreator/internal/agent"
	v1 "github.com/gosuda/vrcreator/internal/api/v1"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/store/snapshot"
	"github.com/gosuda/vrcreator/internal/workspace"
)

// ---------------------------------------------------------------------------
// Tool fixture: real sandbox, store and snapshots under a temp dir
// ---------------------------------------------------------------------------

type toolFixture struct {
	root    string
	store   *workspace.Store
	journal *memJournal
	api     humatest.TestAPI
}

func newToolAPI(t *testing.T) *toolFixture {
	t.Helper()

	root := t.TempDir()
	sb, err := workspace.NewSandbox(root, "src/generated", "public/models")
	require.NoError(t, err)
	store, err := workspace.NewStore(filepath.Join(root, "src", "generated"), ".go")
	require.NoError(t, err)
	snaps, err := snapshot.New(filepath.Join(root, ".scenes"))
	require.NoError(t, err)

	j := &memJournal{}
	tools := agent.NewToolset(agent.ToolsetDeps{Sandbox: sb, Store: store, Snapshots: snaps, Journal: j})

	_, api := humatest.New(t)
	v1.RegisterFileRoutes(api, tools)
	v1.RegisterSceneRoutes(api, tools)
	v1.RegisterJournalRoutes(api, j)

	return &toolFixture{root: root, store: store, journal: j, api: api}
}

// parseErrorBody decodes the RFC 9457 problem detail from the response body.
func parseErrorBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

// errorCode returns the wire code carried in the first error detail.
func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	body := parseErrorBody(t, raw)
	errs, ok := body["errors"].([]any)
	require.True(t, ok, "problem has no errors: %s", raw)
	require.NotEmpty(t, errs)
	detail, ok := errs[0].(map[string]any)
	require.True(t, ok)
	code, _ := detail["message"].(string)
	return code
}

// ---------------------------------------------------------------------------
// Mock journal
// ---------------------------------------------------------------------------

type memJournal struct {
	mu    sync.Mutex
	calls []*domain.ToolCall
	err   error
}

func (j *memJournal) Append(_ context.Context, c *domain.ToolCall) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append([]*domain.ToolCall{c}, j.calls...)
	return nil
}

func (j *memJournal) ListRecent(_ context.Context, limit int) ([]*domain.ToolCall, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return nil, j.err
	}
	if limit < len(j.calls) {
		return j.calls[:limit], nil
	}
	return j.calls, nil
}

func (j *memJournal) Close() error { return nil }

// ---------------------------------------------------------------------------
// Mock ModuleController
// ---------------------------------------------------------------------------

type mockModules struct {
	modules    []domain.GeneratedModule
	reloadFunc func(ctx context.Context, key string) error
	inflight   map[string]bool
}

func (m *mockModules) Modules() []domain.GeneratedModule { return m.modules }

func (m *mockModules) Module(key string) (domain.GeneratedModule, bool) {
	for _, mod := range m.modules {
		if mod.Key == key {
			return mod, true
		}
	}
	return domain.GeneratedModule{}, false
}

func (m *mockModules) Reload(ctx context.Context, key string) error {
	return m.reloadFunc(ctx, key)
}

func (m *mockModules) Abort(key string) bool { return m.inflight[key] }

// ---------------------------------------------------------------------------
// Mock AgentController
// ---------------------------------------------------------------------------

type mockAgent struct {
	startFunc  func(ctx context.Context, prompt string) (agent.Session, error)
	cancelFunc func() (agent.Session, error)
	current    *agent.Session
}

func (m *mockAgent) Start(ctx context.Context, prompt string) (agent.Session, error) {
	return m.startFunc(ctx, prompt)
}

func (m *mockAgent) Cancel() (agent.Session, error) { return m.cancelFunc() }

func (m *mockAgent) Current() (agent.Session, bool) {
	if m.current == nil {
		return agent.Session{}, false
	}
	return *m.current, true
}
