// Package bridge turns generated module source into live scene effects. It
// serializes loads and removals per module key, tears down the previous
// instance before a new one runs, and reports every outcome as an event.
package bridge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/scene"
)

// EvalKey is the module key used for ad-hoc eval snippets.
const EvalKey = "@eval"

var (
	ErrClosed     = errors.New("bridge: closed")                                                //nolint:gochecknoglobals // sentinel error
	ErrAborted    = errors.New("bridge: load aborted")                                          //nolint:gochecknoglobals // sentinel error
	ErrSuperseded = fmt.Errorf("bridge: load superseded by newer work: %w", domain.ErrConflict) //nolint:gochecknoglobals // sentinel error
)

type opKind int

const (
	opLoad opKind = iota
	opRemove
)

type task struct {
	op   opKind
	path string
	code string
	done chan error // nil for fire-and-forget
}

// Options configures a Bridge.
type Options struct {
	// Timeout bounds one module load. Zero means unbounded; Abort still works.
	Timeout time.Duration
	// Notify receives module_loaded, module_failed and module_removed events.
	Notify func(domain.Event)
}

// Bridge owns the active module set. Work for one key runs strictly in
// submission order; different keys proceed concurrently.
type Bridge struct {
	ctx      context.Context
	world    *scene.World
	registry *Registry
	exec     Executor
	opts     Options

	mu       sync.Mutex
	lanes    map[string][]task
	modules  map[string]*domain.GeneratedModule
	sources  map[string]string
	active   map[string]*scene.Runtime
	inflight map[string]context.CancelCauseFunc
	closed   bool
	wg       sync.WaitGroup
}

// New creates a bridge. ctx bounds the lifetime of every module runtime.
func New(ctx context.Context, world *scene.World, registry *Registry, exec Executor, opts Options) *Bridge {
	if opts.Notify == nil {
		opts.Notify = func(domain.Event) {}
	}
	return &Bridge{
		ctx:      ctx,
		world:    world,
		registry: registry,
		exec:     exec,
		opts:     opts,
		lanes:    make(map[string][]task),
		modules:  make(map[string]*domain.GeneratedModule),
		sources:  make(map[string]string),
		active:   make(map[string]*scene.Runtime),
		inflight: make(map[string]context.CancelCauseFunc),
	}
}

// Submit queues a load of path's source without waiting.
func (b *Bridge) Submit(path, code string) error {
	return b.enqueue(domain.ModuleKey(path), task{op: opLoad, path: path, code: code})
}

// SubmitRemove queues a removal without waiting.
func (b *Bridge) SubmitRemove(key string) error {
	return b.enqueue(key, task{op: opRemove})
}

// Load tears down any active instance of key and executes code, waiting for
// the outcome. The returned error wraps ErrExecutionFailure when the module
// itself failed.
func (b *Bridge) Load(ctx context.Context, key, code string) error {
	return b.wait(ctx, key, task{op: opLoad, code: code})
}

// Remove tears down key and forgets it.
func (b *Bridge) Remove(ctx context.Context, key string) error {
	return b.wait(ctx, key, task{op: opRemove})
}

// Reload runs the last loaded source of key again.
func (b *Bridge) Reload(ctx context.Context, key string) error {
	b.mu.Lock()
	code, ok := b.sources[key]
	path := ""
	if m, found := b.modules[key]; found {
		path = m.Path
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("bridge.Bridge.Reload %s: %w", key, domain.ErrNotFound)
	}
	return b.wait(ctx, key, task{op: opLoad, path: path, code: code})
}

// Eval runs a snippet as the EvalKey module, replacing the previous snippet.
func (b *Bridge) Eval(ctx context.Context, code string) error {
	return b.Load(ctx, EvalKey, code)
}

// Abort cancels the in-flight load of key, if any. The load is marked failed
// and the lane moves on to the next queued task.
func (b *Bridge) Abort(key string) bool {
	b.mu.Lock()
	cancel, ok := b.inflight[key]
	b.mu.Unlock()
	if ok {
		cancel(ErrAborted)
	}
	return ok
}

func (b *Bridge) wait(ctx context.Context, key string, t task) error {
	t.done = make(chan error, 1)
	if err := b.enqueue(key, t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("bridge.Bridge: %s: %w", key, ctx.Err())
	}
}

func (b *Bridge) enqueue(key string, t task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	q, running := b.lanes[key]
	b.lanes[key] = append(q, t)
	// newer work for a key makes the running load obsolete
	if cancel, ok := b.inflight[key]; ok {
		cancel(ErrSuperseded)
	}
	if !running {
		b.wg.Add(1)
		go b.drain(key)
	}
	return nil
}

// drain runs the lane for key until it is empty.
func (b *Bridge) drain(key string) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		q := b.lanes[key]
		if len(q) == 0 {
			delete(b.lanes, key)
			b.mu.Unlock()
			return
		}
		t := q[0]
		b.lanes[key] = q[1:]
		b.mu.Unlock()

		var err error
		switch t.op {
		case opLoad:
			err = b.load(key, t.path, t.code)
		case opRemove:
			err = b.remove(key)
		}
		if t.done != nil {
			t.done <- err
		}
	}
}

func (b *Bridge) load(key, path, code string) error {
	gen := b.transition(key, domain.ModuleStatusPending, func(m *domain.GeneratedModule) {
		m.Generation++
		if path != "" {
			m.Path = path
		}
		sum := sha256.Sum256([]byte(code))
		m.SourceHash = hex.EncodeToString(sum[:8])
		m.Error = ""
	})

	b.revoke(key)
	if err := b.registry.Teardown(key); err != nil {
		log.Error().Err(err).Str("module", key).Msg("bridge.Bridge.load: teardown of previous instance")
		e := domain.ModuleEvent(domain.ActionModuleFailed, key, err.Error())
		e.Status = domain.CodeTeardownFailure
		b.opts.Notify(e)
	}

	rt := scene.NewRuntime(b.ctx, key, gen, b.world, b.registry)
	b.registry.TrackCleanup(key, scene.DisposeFunc(func() error {
		rt.Revoke()
		return nil
	}))

	ctx, cancel := context.WithCancelCause(b.ctx)
	execCtx, stop := ctx, context.CancelFunc(func() {})
	if b.opts.Timeout > 0 {
		execCtx, stop = context.WithTimeout(ctx, b.opts.Timeout)
	}
	b.mu.Lock()
	b.active[key] = rt
	b.inflight[key] = cancel
	b.sources[key] = code
	if len(b.lanes[key]) > 0 {
		cancel(ErrSuperseded)
	}
	b.mu.Unlock()

	err := b.exec.Execute(execCtx, rt, code)
	if err != nil {
		if cause := context.Cause(execCtx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", err, cause)
		}
	}

	b.mu.Lock()
	delete(b.inflight, key)
	b.mu.Unlock()
	stop()
	cancel(nil)

	if err != nil {
		// a failed module disappears instead of staying half built
		b.revoke(key)
		if terr := b.registry.Teardown(key); terr != nil {
			log.Error().Err(terr).Str("module", key).Msg("bridge.Bridge.load: teardown after failure")
		}
		b.transition(key, domain.ModuleStatusFailed, func(m *domain.GeneratedModule) {
			m.Error = err.Error()
			m.EntityCount = 0
		})
		if errors.Is(err, ErrSuperseded) {
			log.Info().Str("module", key).Int("generation", gen).Msg("bridge.Bridge.load: superseded")
			return err
		}
		log.Warn().Err(err).Str("module", key).Int("generation", gen).Msg("bridge.Bridge.load: module failed")
		e := domain.ModuleEvent(domain.ActionModuleFailed, key, err.Error())
		e.Status = domain.ErrorCode(err)
		b.opts.Notify(e)
		return err
	}

	count := len(b.registry.Entities(key))
	b.transition(key, domain.ModuleStatusActive, func(m *domain.GeneratedModule) {
		m.EntityCount = count
	})
	log.Info().Str("module", key).Int("generation", gen).Int("entities", count).Msg("bridge.Bridge.load: module active")
	b.opts.Notify(domain.ModuleEvent(domain.ActionModuleLoaded, key, fmt.Sprintf("%d entities", count)))
	return nil
}

func (b *Bridge) remove(key string) error {
	b.revoke(key)
	err := b.registry.Teardown(key)

	b.mu.Lock()
	_, known := b.modules[key]
	delete(b.modules, key)
	delete(b.sources, key)
	b.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("module", key).Msg("bridge.Bridge.remove: teardown")
		e := domain.ModuleEvent(domain.ActionModuleFailed, key, err.Error())
		e.Status = domain.CodeTeardownFailure
		b.opts.Notify(e)
	}
	if known {
		b.opts.Notify(domain.ModuleEvent(domain.ActionModuleRemoved, key, ""))
	}
	return err
}

// revoke withdraws the capabilities of key's current runtime. Revoke waits
// for helpers in flight, so timers and handlers of that generation can no
// longer track entities once it returns and teardown sees a closed set.
func (b *Bridge) revoke(key string) {
	b.mu.Lock()
	rt, ok := b.active[key]
	delete(b.active, key)
	b.mu.Unlock()
	if ok {
		rt.Revoke()
	}
}

// transition moves key to status, applying fn to the record first, and
// returns the record's generation.
func (b *Bridge) transition(key string, status domain.ModuleStatus, fn func(*domain.GeneratedModule)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.modules[key]
	if !ok {
		m = &domain.GeneratedModule{Key: key, Status: domain.ModuleStatusRemoved}
		b.modules[key] = m
	}
	if m.Status != status && !m.Status.ValidTransition(status) {
		log.Warn().Str("module", key).Str("from", string(m.Status)).Str("to", string(status)).
			Msg("bridge.Bridge: unexpected status transition")
	}
	if fn != nil {
		fn(m)
	}
	m.Status = status
	m.UpdatedAt = time.Now()
	return m.Generation
}

// Modules returns a copy of every known module record, sorted by key.
func (b *Bridge) Modules() []domain.GeneratedModule {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.GeneratedModule, 0, len(b.modules))
	for _, k := range slices.Sorted(maps.Keys(b.modules)) {
		out = append(out, *b.modules[k])
	}
	return out
}

// Module returns the record for key.
func (b *Bridge) Module(key string) (domain.GeneratedModule, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.modules[key]
	if !ok {
		return domain.GeneratedModule{}, false
	}
	return *m, true
}

// Reset tears down every module and forgets all records.
func (b *Bridge) Reset() error {
	b.mu.Lock()
	keys := slices.Sorted(maps.Keys(b.modules))
	b.mu.Unlock()

	var errs []error
	for _, k := range keys {
		if err := b.Remove(context.Background(), k); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.registry.TeardownAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close stops accepting work, aborts in-flight loads, waits for queued work
// and tears everything down.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, cancel := range b.inflight {
		cancel(ErrClosed)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.mu.Lock()
	keys := slices.Collect(maps.Keys(b.active))
	b.mu.Unlock()
	for _, k := range keys {
		b.revoke(k)
	}
	if err := b.registry.TeardownAll(); err != nil {
		return fmt.Errorf("bridge.Bridge.Close: %w", err)
	}
	return nil
}
