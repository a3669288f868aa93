package scene

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/vrcreator/internal/domain"
)

var (
	ErrEntityNotFound   = fmt.Errorf("scene: entity %w", domain.ErrNotFound)   //nolint:gochecknoglobals // sentinel error
	ErrResourceNotFound = fmt.Errorf("scene: resource %w", domain.ErrNotFound) //nolint:gochecknoglobals // sentinel error
)

// Observer receives entity changes after they are applied. Callbacks run
// outside the world lock, one at a time, in the order the changes were
// applied. An observer must not call back into the world.
type Observer interface {
	EntityAdded(e Entity)
	EntityUpdated(e Entity)
	EntityRemoved(id EntityID, module string)
}

// Stats is a point-in-time count of everything the world holds.
type Stats struct {
	Entities       int `json:"entities"`
	Resources      int `json:"resources"`
	FrameListeners int `json:"frameListeners"`
	TopicListeners int `json:"topicListeners"`
}

// World is the single scene graph of a running server. All methods are safe
// for concurrent use.
type World struct {
	mu        sync.RWMutex
	entities  map[EntityID]*Entity
	resources map[ResourceID]*Resource
	frames    map[uint64]func(dt float64)
	topics    map[string]map[uint64]func(payload map[string]any)
	seq       uint64
	observer  Observer

	// notifyMu is taken before mu is released, handing each change to the
	// observer in mutation order.
	notifyMu sync.Mutex
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		entities:  make(map[EntityID]*Entity),
		resources: make(map[ResourceID]*Resource),
		frames:    make(map[uint64]func(float64)),
		topics:    make(map[string]map[uint64]func(map[string]any)),
	}
}

// SetObserver installs the change observer. Pass nil to detach.
func (w *World) SetObserver(o Observer) {
	w.mu.Lock()
	w.observer = o
	w.mu.Unlock()
}

func (w *World) nextSeq() uint64 {
	w.seq++
	return w.seq
}

// Spawn inserts e and returns the stored copy. An empty ID is replaced with a
// fresh UUID and a zero scale defaults to 1.
func (w *World) Spawn(e Entity) (Entity, error) {
	if e.ID == "" {
		e.ID = EntityID(uuid.NewString())
	}
	if e.Scale == (Vec3{}) {
		e.Scale = V(1, 1, 1)
	}

	w.mu.Lock()
	if _, dup := w.entities[e.ID]; dup {
		w.mu.Unlock()
		return Entity{}, fmt.Errorf("scene.World.Spawn: duplicate entity %q", e.ID)
	}
	if e.Parent != "" {
		if _, ok := w.entities[e.Parent]; !ok {
			w.mu.Unlock()
			return Entity{}, fmt.Errorf("scene.World.Spawn: parent %q: %w", e.Parent, ErrEntityNotFound)
		}
	}
	stored := e.clone()
	stored.seq = w.nextSeq()
	w.entities[stored.ID] = &stored
	out := stored.clone()
	obs := w.observer
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	if obs != nil {
		obs.EntityAdded(out)
	}
	return out, nil
}

// Get returns a copy of the entity with the given id.
func (w *World) Get(id EntityID) (Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	if !ok {
		return Entity{}, false
	}
	return e.clone(), true
}

// Update applies fn to the stored entity. ID and Module are restored after fn
// returns; they cannot be changed through Update.
func (w *World) Update(id EntityID, fn func(*Entity)) (Entity, error) {
	w.mu.Lock()
	e, ok := w.entities[id]
	if !ok {
		w.mu.Unlock()
		return Entity{}, fmt.Errorf("scene.World.Update: %q: %w", id, ErrEntityNotFound)
	}
	module, seq := e.Module, e.seq
	fn(e)
	e.ID, e.Module, e.seq = id, module, seq
	out := e.clone()
	obs := w.observer
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	if obs != nil {
		obs.EntityUpdated(out)
	}
	return out, nil
}

// Remove deletes the entity and, recursively, its children.
func (w *World) Remove(id EntityID) error {
	w.mu.Lock()
	root, ok := w.entities[id]
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("scene.World.Remove: %q: %w", id, ErrEntityNotFound)
	}

	removed := []Entity{*root}
	delete(w.entities, id)
	for i := 0; i < len(removed); i++ {
		parent := removed[i].ID
		for cid, c := range w.entities {
			if c.Parent == parent {
				removed = append(removed, *c)
				delete(w.entities, cid)
			}
		}
	}
	obs := w.observer
	w.notifyMu.Lock()
	w.mu.Unlock()
	defer w.notifyMu.Unlock()

	if obs != nil {
		// children first so mirrors never see an orphan
		for i := len(removed) - 1; i >= 0; i-- {
			obs.EntityRemoved(removed[i].ID, removed[i].Module)
		}
	}
	return nil
}

// Entities returns copies of every entity in creation order.
func (w *World) Entities() []Entity {
	return w.collect(func(*Entity) bool { return true })
}

// ByModule returns the entities owned by a module key, in creation order.
func (w *World) ByModule(module string) []Entity {
	return w.collect(func(e *Entity) bool { return e.Module == module })
}

func (w *World) collect(keep func(*Entity) bool) []Entity {
	w.mu.RLock()
	out := w.copyLocked(keep)
	w.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.seq, b.seq) })
	return out
}

func (w *World) copyLocked(keep func(*Entity) bool) []Entity {
	out := make([]Entity, 0, len(w.entities))
	for _, e := range w.entities {
		if keep(e) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Hold runs fn with every entity in creation order while observer delivery
// is paused. Changes in the list reached the observer before fn runs; changes
// missing from it reach the observer after fn returns. fn must not call back
// into the world.
func (w *World) Hold(fn func(entities []Entity)) {
	w.mu.RLock()
	out := w.copyLocked(func(*Entity) bool { return true })
	w.notifyMu.Lock()
	w.mu.RUnlock()
	defer w.notifyMu.Unlock()

	slices.SortFunc(out, func(a, b Entity) int { return cmp.Compare(a.seq, b.seq) })
	fn(out)
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// AddResource allocates a resource owned by module.
func (w *World) AddResource(kind ResourceKind, module string, params map[string]any) Resource {
	r := Resource{
		ID:     ResourceID(uuid.NewString()),
		Kind:   kind,
		Module: module,
		Params: maps.Clone(params),
	}
	w.mu.Lock()
	stored := r
	w.resources[r.ID] = &stored
	w.mu.Unlock()
	return r
}

// DisposeResource releases a resource. Disposing an unknown id is an error.
func (w *World) DisposeResource(id ResourceID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.resources[id]; !ok {
		return fmt.Errorf("scene.World.DisposeResource: %q: %w", id, ErrResourceNotFound)
	}
	delete(w.resources, id)
	return nil
}

// Resources returns the live resources owned by module, or all when module is empty.
func (w *World) Resources(module string) []Resource {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Resource, 0, len(w.resources))
	for _, r := range w.resources {
		if module == "" || r.Module == module {
			out = append(out, *r)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Frame loop and topic bus
// ---------------------------------------------------------------------------

// OnFrame registers fn to run on every Step. The returned func unregisters it.
func (w *World) OnFrame(fn func(dt float64)) func() {
	w.mu.Lock()
	id := w.nextSeq()
	w.frames[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.frames, id)
		w.mu.Unlock()
	}
}

// Step advances the frame loop by dt seconds. A panicking listener is logged
// and does not stop the others.
func (w *World) Step(dt float64) {
	w.mu.RLock()
	ids := slices.Sorted(maps.Keys(w.frames))
	fns := make([]func(float64), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, w.frames[id])
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		safeCall("scene.World.Step", func() { fn(dt) })
	}
}

// On subscribes fn to a topic. The returned func unsubscribes it.
func (w *World) On(topic string, fn func(payload map[string]any)) func() {
	w.mu.Lock()
	id := w.nextSeq()
	subs, ok := w.topics[topic]
	if !ok {
		subs = make(map[uint64]func(map[string]any))
		w.topics[topic] = subs
	}
	subs[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		if subs, ok := w.topics[topic]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(w.topics, topic)
			}
		}
		w.mu.Unlock()
	}
}

// Emit delivers payload to every subscriber of topic and returns how many
// were called.
func (w *World) Emit(topic string, payload map[string]any) int {
	w.mu.RLock()
	subs := w.topics[topic]
	ids := slices.Sorted(maps.Keys(subs))
	fns := make([]func(map[string]any), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, subs[id])
	}
	w.mu.RUnlock()

	for _, fn := range fns {
		safeCall("scene.World.Emit", func() { fn(maps.Clone(payload)) })
	}
	return len(fns)
}

// Stats counts entities, resources and listeners.
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Stats{
		Entities:       len(w.entities),
		Resources:      len(w.resources),
		FrameListeners: len(w.frames),
	}
	for _, subs := range w.topics {
		s.TopicListeners += len(subs)
	}
	return s
}

func safeCall(where string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg(where + ": listener panicked")
		}
	}()
	fn()
}
