package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gosuda/vrcreator/internal/watcher"
	"github.com/gosuda/vrcreator/internal/workspace"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T, seed ...string) (*watcher.Watcher, *workspace.Store, []workspace.FileInfo) {
	t.Helper()
	store, err := workspace.NewStore(t.TempDir(), ".go")
	require.NoError(t, err)
	for _, name := range seed {
		require.NoError(t, store.Write(name, []byte("package x")))
	}

	w, err := watcher.New(store)
	require.NoError(t, err)
	files, err := w.Start(context.Background())
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w, store, files
}

func next(t *testing.T, w *watcher.Watcher) watcher.Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no watcher event")
		return watcher.Event{}
	}
}

func assertQuiet(t *testing.T, w *watcher.Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestWatcher_InitialScanIsSilent(t *testing.T) {
	t.Parallel()

	w, _, files := startWatcher(t, "a.go", "b.go")
	require.Len(t, files, 2)
	assert.Equal(t, "a.go", files[0].Name)
	assertQuiet(t, w)
}

func TestWatcher_AddChangeRemove(t *testing.T) {
	t.Parallel()

	w, store, _ := startWatcher(t, "existing.go")

	require.NoError(t, store.Write("crate.go", []byte("package crate")))
	ev := next(t, w)
	assert.Equal(t, watcher.ModuleAdded, ev.Kind)
	assert.Equal(t, "crate", ev.Key)
	assert.Equal(t, filepath.Join(store.Dir(), "crate.go"), ev.Path)

	require.NoError(t, store.Write("crate.go", []byte("package crate // v2")))
	ev = next(t, w)
	assert.Equal(t, watcher.ModuleChanged, ev.Kind)

	require.NoError(t, store.Write("existing.go", []byte("package existing // v2")))
	ev = next(t, w)
	assert.Equal(t, watcher.ModuleChanged, ev.Kind, "files from the initial scan are known")
	assert.Equal(t, "existing", ev.Key)

	require.NoError(t, store.Delete("crate.go"))
	ev = next(t, w)
	assert.Equal(t, watcher.ModuleRemoved, ev.Kind)
	assert.Equal(t, "crate", ev.Key)
}

func TestWatcher_FiltersUnrelatedFiles(t *testing.T) {
	t.Parallel()

	w, store, _ := startWatcher(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), ".hidden.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "README.md"), []byte("x"), 0o644))
	assertQuiet(t, w)
}

func TestWatcher_DirectWriteIsNotCoalesced(t *testing.T) {
	t.Parallel()

	w, store, _ := startWatcher(t)

	f, err := os.Create(filepath.Join(store.Dir(), "raw.go"))
	require.NoError(t, err)
	ev := next(t, w)
	assert.Equal(t, watcher.ModuleAdded, ev.Kind)

	_, err = f.WriteString("package raw")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	ev = next(t, w)
	assert.Equal(t, watcher.ModuleChanged, ev.Kind)
	assert.Equal(t, "raw", ev.Key)
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	t.Parallel()

	store, err := workspace.NewStore(t.TempDir(), ".go")
	require.NoError(t, err)
	w, err := watcher.New(store)
	require.NoError(t, err)
	_, err = w.Start(context.Background())
	require.NoError(t, err)

	w.Stop()
	w.Stop()
	_, open := <-w.Events()
	assert.False(t, open)
}
