// Package pipeline connects the module store to the live scene: file changes
// become bridge loads, scene changes become relay deltas, and browser input
// reaches the agent and the world.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/agent"
	"github.com/gosuda/vrcreator/internal/bridge"
	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/scene"
	"github.com/gosuda/vrcreator/internal/watcher"
)

// Relay delivers events to connected clients.
type Relay interface {
	Broadcast(e domain.Event)
}

// Prompter starts agent sessions. *agent.SessionManager implements it.
type Prompter interface {
	Start(ctx context.Context, prompt string) (agent.Session, error)
}

// Loader is the subset of the bridge the pipeline drives.
type Loader interface {
	Submit(path, code string) error
	SubmitRemove(key string) error
	Eval(ctx context.Context, code string) error
}

var _ Loader = (*bridge.Bridge)(nil)

// Options configures a Pipeline.
type Options struct {
	Watcher *watcher.Watcher
	Bridge  Loader
	World   *scene.World
	Relay   Relay
	Agent   Prompter // may be nil

	// RelPath renders absolute module paths for filePath fields. Nil keeps
	// them as is.
	RelPath func(abs string) string

	TickRate      time.Duration // zero disables world ticks
	DeltaThrottle time.Duration
}

// Pipeline is the long-running glue between watcher, bridge, world and relay.
type Pipeline struct {
	opts    Options
	batcher atomic.Pointer[scene.Batcher]
}

func New(opts Options) *Pipeline {
	if opts.RelPath == nil {
		opts.RelPath = func(p string) string { return p }
	}
	return &Pipeline{opts: opts}
}

// State hands fn the entity list for a new client's scene_state handshake.
// Pending deltas go out first and later ones wait until fn returns, so a
// client registered inside fn sees each change exactly once.
func (p *Pipeline) State(fn func(state any)) {
	p.opts.World.Hold(func(entities []scene.Entity) {
		if b := p.batcher.Load(); b != nil {
			b.Flush()
		}
		fn(entities)
	})
}

// Run loads the modules already on disk, then follows the watcher until ctx
// ends.
func (p *Pipeline) Run(ctx context.Context) error {
	batcher := scene.NewBatcher(p.opts.DeltaThrottle, p.flushDelta)
	p.opts.World.SetObserver(batcher)
	p.batcher.Store(batcher)
	defer func() {
		p.opts.World.SetObserver(nil)
		p.batcher.Store(nil)
		batcher.Close()
	}()

	existing, err := p.opts.Watcher.Start(ctx)
	if err != nil {
		return fmt.Errorf("pipeline.Pipeline.Run: %w", err)
	}
	defer p.opts.Watcher.Stop()

	for _, f := range existing {
		p.load(f.Path, false)
	}
	log.Info().Int("modules", len(existing)).Msg("pipeline: initial modules submitted")

	var tick <-chan time.Time
	if p.opts.TickRate > 0 {
		ticker := time.NewTicker(p.opts.TickRate)
		defer ticker.Stop()
		tick = ticker.C
	}
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-p.opts.Watcher.Events():
			if !ok {
				return nil
			}
			p.handle(ev)
		case now := <-tick:
			p.opts.World.Step(now.Sub(last).Seconds())
			last = now
		}
	}
}

func (p *Pipeline) handle(ev watcher.Event) {
	switch ev.Kind {
	case watcher.ModuleAdded, watcher.ModuleChanged:
		p.load(ev.Path, true)
	case watcher.ModuleRemoved:
		p.opts.Relay.Broadcast(domain.FileDeletedEvent(p.opts.RelPath(ev.Path)))
		if err := p.opts.Bridge.SubmitRemove(ev.Key); err != nil {
			log.Error().Err(err).Str("module", ev.Key).Msg("pipeline.Pipeline.handle: submit remove")
		}
	}
}

// load reads path and hands it to the bridge. announce controls whether the
// change is relayed as file_changed/execute; the initial scan is silent.
func (p *Pipeline) load(path string, announce bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		// A file deleted right after a write event; its remove event follows.
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		log.Error().Err(err).Str("path", path).Msg("pipeline.Pipeline.load: read")
		return
	}
	code := string(data)
	if announce {
		p.opts.Relay.Broadcast(domain.FileChangedEvent(p.opts.RelPath(path)))
		p.opts.Relay.Broadcast(domain.ExecuteEvent(domain.ModuleKey(path), code))
	}
	if err := p.opts.Bridge.Submit(path, code); err != nil {
		log.Error().Err(err).Str("path", path).Msg("pipeline.Pipeline.load: submit")
	}
}

func (p *Pipeline) flushDelta(ops []scene.DeltaOp) {
	e := domain.NewEvent(domain.ActionSceneDelta)
	e.Delta = ops
	p.opts.Relay.Broadcast(e)
}
