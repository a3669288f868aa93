package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/bridge"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/pipeline"
	"github.com/gosuda/vrcreator/internal/scene"
	"github.com/gosuda/vrcreator/internal/watcher"
	"github.com/gosuda/vrcreator/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- fakes ---

type relay struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *relay) Broadcast(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *relay) find(action domain.Action) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type loader struct {
	mu      sync.Mutex
	loads   map[string]string // path -> last code
	removes []string
	evals   []string
}

func newLoader() *loader { return &loader{loads: make(map[string]string)} }

func (l *loader) Submit(path, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[filepath.Base(path)] = code
	return nil
}

func (l *loader) SubmitRemove(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removes = append(l.removes, key)
	return nil
}

func (l *loader) Eval(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evals = append(l.evals, code)
	return nil
}

func (l *loader) code(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.loads[name]
	return c, ok
}

func (l *loader) removed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.removes)
}

func (l *loader) evaluated() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.evals)
}

type prompter struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (p *prompter) Start(_ context.Context, prompt string) (agent.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return agent.Session{}, p.err
	}
	p.prompts = append(p.prompts, prompt)
	return agent.Session{ID: uuid.New(), Prompt: prompt, Status: agent.SessionRunning}, nil
}

type fixture struct {
	dir    string
	world  *scene.World
	relay  *relay
	loader *loader
	agent  *prompter
	p      *pipeline.Pipeline
}

func newFixture(t *testing.T, tick time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := workspace.NewStore(dir, ".go")
	require.NoError(t, err)
	w, err := watcher.New(store)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	f := &fixture{dir: dir, world: scene.NewWorld(), relay: &relay{}, loader: newLoader(), agent: &prompter{}}
	f.p = pipeline.New(pipeline.Options{
		Watcher:       w,
		Bridge:        f.loader,
		World:         f.world,
		Relay:         f.relay,
		Agent:         f.agent,
		RelPath:       func(abs string) string { return "src/generated/" + filepath.Base(abs) },
		TickRate:      tick,
		DeltaThrottle: 0,
	})
	return f
}

// run starts the pipeline once seed.go has been written, and waits until the
// initial scan has submitted it.
func (f *fixture) run(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "seed.go"), []byte("package seed"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("pipeline did not stop")
		}
	})

	require.Eventually(t, func() bool {
		_, ok := f.loader.code("seed.go")
		return ok
	}, 5*time.Second, 5*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Watcher to bridge
// ---------------------------------------------------------------------------

func TestInitialScanIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "existing.go"), []byte("package existing"), 0o644))
	f.run(t)

	code, ok := f.loader.code("existing.go")
	require.True(t, ok)
	assert.Equal(t, "package existing", code)
	assert.Empty(t, f.relay.find(domain.ActionFileChanged))
	assert.Empty(t, f.relay.find(domain.ActionExecute))
}

func TestChangeIsRelayedAndSubmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.run(t)

	require.NoError(t, workspace.WriteFileAtomic(filepath.Join(f.dir, "crate.go"), []byte("package crate")))

	require.Eventually(t, func() bool {
		c, ok := f.loader.code("crate.go")
		return ok && c == "package crate"
	}, 5*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(f.relay.find(domain.ActionExecute)) > 0 }, time.Second, 5*time.Millisecond)
	changed := f.relay.find(domain.ActionFileChanged)
	require.NotEmpty(t, changed)
	assert.Equal(t, "src/generated/crate.go", changed[0].FilePath)
	assert.Equal(t, "crate", changed[0].ModuleID)

	exec := f.relay.find(domain.ActionExecute)[0]
	assert.Equal(t, "crate", exec.ModuleID)
	assert.Equal(t, "package crate", exec.Code)
}

func TestRemoveIsRelayedAndSubmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.run(t)

	require.NoError(t, os.Remove(filepath.Join(f.dir, "seed.go")))

	require.Eventually(t, func() bool { return slices.Contains(f.loader.removed(), "seed") }, 5*time.Second, 5*time.Millisecond)
	deleted := f.relay.find(domain.ActionFileDeleted)
	require.Len(t, deleted, 1)
	assert.Equal(t, "src/generated/seed.go", deleted[0].FilePath)
	assert.Equal(t, "seed", deleted[0].ModuleID)
}

// ---------------------------------------------------------------------------
// Scene to relay
// ---------------------------------------------------------------------------

func TestSceneDeltas(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.run(t)

	e, err := f.world.Spawn(scene.Entity{Kind: scene.KindBox, Module: "crate"})
	require.NoError(t, err)
	require.NoError(t, f.world.Remove(e.ID))

	require.Eventually(t, func() bool {
		var ops []scene.DeltaOp
		for _, ev := range f.relay.find(domain.ActionSceneDelta) {
			batch, ok := ev.Delta.([]scene.DeltaOp)
			if !ok {
				return false
			}
			ops = append(ops, batch...)
		}
		return len(ops) == 2 && ops[0].Op == "add" && ops[1].Op == "remove" && ops[1].ID == e.ID
	}, 5*time.Second, 5*time.Millisecond)

	var state any
	f.p.State(func(s any) { state = s })
	entities, ok := state.([]scene.Entity)
	require.True(t, ok)
	assert.Empty(t, entities)
}

func deltaAdds(events []domain.Event) []scene.EntityID {
	var ids []scene.EntityID
	for _, ev := range events {
		batch, _ := ev.Delta.([]scene.DeltaOp)
		for _, op := range batch {
			if op.Op == "add" {
				ids = append(ids, op.ID)
			}
		}
	}
	return ids
}

func TestStateAndDeltasCoverEachChangeOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.run(t)

	const n = 300
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range n {
			_, _ = f.world.Spawn(scene.Entity{Kind: scene.KindBox, Module: "crate"})
		}
	}()
	time.Sleep(200 * time.Microsecond)

	var held []scene.Entity
	var cutoff int
	f.p.State(func(s any) {
		held, _ = s.([]scene.Entity)
		cutoff = len(f.relay.find(domain.ActionSceneDelta))
	})
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(deltaAdds(f.relay.find(domain.ActionSceneDelta))) == n
	}, 5*time.Second, 5*time.Millisecond)

	deltas := f.relay.find(domain.ActionSceneDelta)
	inState := make(map[scene.EntityID]bool, len(held))
	for _, e := range held {
		inState[e.ID] = true
	}
	before := deltaAdds(deltas[:cutoff])
	assert.Len(t, before, len(held))
	for _, id := range before {
		assert.True(t, inState[id], "delta sent before the state is part of it")
	}
	for _, id := range deltaAdds(deltas[cutoff:]) {
		assert.False(t, inState[id], "delta after the state repeats %s", id)
	}
}

func TestWorldTicks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 5*time.Millisecond)
	var frames atomic.Int32
	off := f.world.OnFrame(func(dt float64) {
		if dt > 0 {
			frames.Add(1)
		}
	})
	defer off()
	f.run(t)

	require.Eventually(t, func() bool { return frames.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
}

// ---------------------------------------------------------------------------
// Inbound
// ---------------------------------------------------------------------------

func TestInboundPrompt(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	e := domain.NewEvent(domain.ActionPrompt)
	e.Text = "add a tree"
	f.p.HandleInbound(t.Context(), "c1", e)

	f.agent.mu.Lock()
	assert.Equal(t, []string{"add a tree"}, f.agent.prompts)
	f.agent.mu.Unlock()
	assert.Empty(t, f.relay.find(domain.ActionAgentStatus))
}

func TestInboundPromptRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	f.agent.err = errors.Join(errors.New("busy"), domain.ErrConflict)

	e := domain.NewEvent(domain.ActionPrompt)
	e.Text = "again"
	f.p.HandleInbound(t.Context(), "c1", e)

	status := f.relay.find(domain.ActionAgentStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "rejected", status[0].Status)
	assert.Contains(t, status[0].Message, domain.CodeConflict)
}

func TestInboundPromptWithoutAgent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := workspace.NewStore(dir, ".go")
	require.NoError(t, err)
	w, err := watcher.New(store)
	require.NoError(t, err)
	t.Cleanup(w.Stop)

	r := &relay{}
	p := pipeline.New(pipeline.Options{Watcher: w, Bridge: newLoader(), World: scene.NewWorld(), Relay: r})
	p.HandleInbound(t.Context(), "c1", domain.Event{Action: domain.ActionPrompt, Text: "hi"})

	status := r.find(domain.ActionAgentStatus)
	require.Len(t, status, 1)
	assert.Equal(t, "rejected", status[0].Status)
}

func TestInboundInteraction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	got := make(chan map[string]any, 1)
	off := f.world.On("click", func(payload map[string]any) { got <- payload })
	defer off()

	e := domain.NewEvent(domain.ActionInteraction)
	e.Text = "click"
	e.Payload = map[string]any{"entity": "abc"}
	f.p.HandleInbound(t.Context(), "c7", e)

	select {
	case p := <-got:
		assert.Equal(t, "abc", p["entity"])
		assert.Equal(t, "c7", p["client"])
	case <-time.After(time.Second):
		t.Fatal("interaction not emitted")
	}
}

func TestInboundEval(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 0)
	e := domain.NewEvent(domain.ActionEval)
	e.Code = "package eval"
	f.p.HandleInbound(t.Context(), "c1", e)

	require.Eventually(t, func() bool { return slices.Equal(f.loader.evaluated(), []string{"package eval"}) }, time.Second, 5*time.Millisecond)

	f.p.HandleInbound(t.Context(), "c1", domain.NewEvent(domain.ActionEval))
	failed := f.relay.find(domain.ActionModuleFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, bridge.EvalKey, failed[0].ModuleID)
	assert.Equal(t, "rejected", failed[0].Status)
}
