// Package watcher classifies filesystem events in the generated module store
// into module lifecycle events.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/workspace"
)

type Kind string

const (
	ModuleAdded   Kind = "module_added"
	ModuleChanged Kind = "module_changed"
	ModuleRemoved Kind = "module_removed"
)

// Event is one logical module change.
type Event struct {
	Kind Kind
	Key  string
	Path string
}

// Watcher watches the module store directory. Events are delivered in the
// order the filesystem reports them, without coalescing.
type Watcher struct {
	store   *workspace.Store
	fsw     *fsnotify.Watcher
	events  chan Event
	mu      sync.Mutex
	known   map[string]bool
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	closeFS sync.Once
}

// New creates a watcher for store. Call Start to begin.
func New(store *workspace.Store) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher.New: %w", err)
	}
	return &Watcher{
		store:  store,
		fsw:    fsw,
		events: make(chan Event, 256),
		known:  make(map[string]bool),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Events returns the outbound event stream. It is closed when the watcher stops.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start subscribes to the store directory, scans it, and returns the files
// that already exist. Those files produce no events; only changes observed
// after the scan do.
func (w *Watcher) Start(ctx context.Context) ([]workspace.FileInfo, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, nil
	}
	w.running = true
	w.mu.Unlock()

	// subscribe before scanning so nothing written in between is missed
	if err := w.fsw.Add(w.store.Dir()); err != nil {
		return nil, fmt.Errorf("watcher.Watcher.Start: %w", err)
	}
	files, err := w.store.List()
	if err != nil {
		return nil, fmt.Errorf("watcher.Watcher.Start: %w", err)
	}
	w.mu.Lock()
	for _, f := range files {
		w.known[f.Name] = true
	}
	w.mu.Unlock()

	log.Info().Str("dir", w.store.Dir()).Int("files", len(files)).Msg("watcher: watching")
	go w.run(ctx)
	return files, nil
}

// Stop ends the event loop and releases the OS watch.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	w.closeFS.Do(func() {
		if err := w.fsw.Close(); err != nil {
			log.Error().Err(err).Msg("watcher.Watcher.Stop: close")
		}
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)
	defer close(w.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			out, emit := w.classify(ev)
			if !emit {
				continue
			}
			select {
			case w.events <- out:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// reported once, watching continues
			log.Error().Err(err).Msg("watcher.Watcher: filesystem watch error")
		}
	}
}

// classify maps a raw event to a module event. Hidden files, other
// extensions and chmod-only events are dropped.
func (w *Watcher) classify(ev fsnotify.Event) (Event, bool) {
	name := filepath.Base(ev.Name)
	if !w.store.IsModuleFile(name) {
		return Event{}, false
	}
	out := Event{Key: domain.ModuleKey(name), Path: ev.Name}

	w.mu.Lock()
	defer w.mu.Unlock()
	known := w.known[name]

	switch {
	case ev.Has(fsnotify.Create):
		out.Kind = ModuleAdded
		if known {
			out.Kind = ModuleChanged
		}
		w.known[name] = true
	case ev.Has(fsnotify.Write):
		out.Kind = ModuleChanged
		if !known {
			out.Kind = ModuleAdded
		}
		w.known[name] = true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if !known {
			return Event{}, false
		}
		out.Kind = ModuleRemoved
		delete(w.known, name)
	default:
		return Event{}, false
	}
	return out, true
}
