package bridge

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
	"github.com/gosuda/vrcreator/internal/scene"
)

// entry is one registration: an entity with the disposables released with it,
// or a bare cleanup when entity is empty.
type entry struct {
	entity      scene.EntityID
	disposables []scene.Disposable
}

// Registry maps module keys to what they own. It holds references only;
// entities live in the world and are removed from it at teardown.
type Registry struct {
	world *scene.World

	mu      sync.Mutex
	modules map[string][]*entry
	byID    map[string]map[scene.EntityID]*entry
}

// NewRegistry creates a registry bound to world.
func NewRegistry(world *scene.World) *Registry {
	return &Registry{
		world:   world,
		modules: make(map[string][]*entry),
		byID:    make(map[string]map[scene.EntityID]*entry),
	}
}

// Track registers id under key. Tracking an entity again appends disposables
// to its existing entry.
func (r *Registry) Track(key string, id scene.EntityID, disposables ...scene.Disposable) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, ok := r.byID[key]
	if !ok {
		ids = make(map[scene.EntityID]*entry)
		r.byID[key] = ids
	}
	if e, ok := ids[id]; ok {
		e.disposables = append(e.disposables, disposables...)
		return
	}
	e := &entry{entity: id, disposables: slices.Clone(disposables)}
	ids[id] = e
	r.modules[key] = append(r.modules[key], e)
}

// TrackCleanup registers disposables owned by key but not tied to an entity.
func (r *Registry) TrackCleanup(key string, disposables ...scene.Disposable) {
	if len(disposables) == 0 {
		return
	}
	r.mu.Lock()
	r.modules[key] = append(r.modules[key], &entry{disposables: slices.Clone(disposables)})
	r.mu.Unlock()
}

// Release tears down a single entity of key ahead of the module.
func (r *Registry) Release(key string, id scene.EntityID) error {
	r.mu.Lock()
	e, ok := r.byID[key][id]
	if ok {
		delete(r.byID[key], id)
		r.modules[key] = slices.DeleteFunc(r.modules[key], func(x *entry) bool { return x == e })
	}
	r.mu.Unlock()

	if !ok {
		if err := r.world.Remove(id); err != nil && !errors.Is(err, scene.ErrEntityNotFound) {
			return fmt.Errorf("bridge.Registry.Release: %w", err)
		}
		return nil
	}
	if errs := r.release(key, e); len(errs) > 0 {
		return fmt.Errorf("bridge.Registry.Release: %w", errors.Join(append(errs, domain.ErrTeardownFailure)...))
	}
	return nil
}

// Teardown removes every entity tracked under key from the world, then
// disposes each registration in order. A failing disposer does not stop the
// rest; all failures come back joined with ErrTeardownFailure. Unknown keys
// are a no-op.
func (r *Registry) Teardown(key string) error {
	r.mu.Lock()
	entries := r.modules[key]
	delete(r.modules, key)
	delete(r.byID, key)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		errs = append(errs, r.release(key, e)...)
	}
	if len(errs) > 0 {
		log.Warn().Str("module", key).Int("failures", len(errs)).Msg("bridge.Registry.Teardown: disposer failures")
		return fmt.Errorf("bridge.Registry.Teardown %s: %w", key, errors.Join(append(errs, domain.ErrTeardownFailure)...))
	}
	return nil
}

// TeardownAll tears down every known key in sorted order.
func (r *Registry) TeardownAll() error {
	var errs []error
	for _, key := range r.Keys() {
		if err := r.Teardown(key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) release(key string, e *entry) []error {
	var errs []error
	if e.entity != "" {
		if err := r.world.Remove(e.entity); err != nil && !errors.Is(err, scene.ErrEntityNotFound) {
			errs = append(errs, err)
		}
	}
	for _, d := range e.disposables {
		if err := dispose(d); err != nil {
			log.Error().Err(err).Str("module", key).Msg("bridge.Registry: dispose failed")
			errs = append(errs, err)
		}
	}
	return errs
}

func dispose(d scene.Disposable) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose panicked: %v", r)
		}
	}()
	return d.Dispose()
}

// Keys lists module keys with live registrations.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Sorted(maps.Keys(r.modules))
}

// Entities lists the entity ids tracked under key in registration order.
func (r *Registry) Entities(key string) []scene.EntityID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []scene.EntityID
	for _, e := range r.modules[key] {
		if e.entity != "" {
			out = append(out, e.entity)
		}
	}
	return out
}

// Len reports how many registrations key holds, entities and cleanups alike.
func (r *Registry) Len(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modules[key])
}
