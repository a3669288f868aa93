package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrRevoked  = errors.New("scene: runtime revoked")                //nolint:gochecknoglobals // sentinel error
	ErrNotOwned = errors.New("scene: entity owned by another module") //nolint:gochecknoglobals // sentinel error
)

// Disposable is anything teardown can release.
type Disposable interface {
	Dispose() error
}

// DisposeFunc adapts a plain function to Disposable.
type DisposeFunc func() error

func (f DisposeFunc) Dispose() error { return f() }

// Tracker records what a module owns. The bridge registry implements it.
type Tracker interface {
	// Track registers an entity, plus optional disposables released with it.
	Track(key string, id EntityID, disposables ...Disposable)
	// TrackCleanup registers disposables that are not tied to an entity.
	TrackCleanup(key string, disposables ...Disposable)
	// Release tears down a single tracked entity before its module goes away.
	Release(key string, id EntityID) error
}

// Runtime is the capability object handed to a generated module's Load
// function. It is bound to one module key and one generation; everything it
// creates is tracked under that key as soon as it exists. Once revoked, every
// method fails with ErrRevoked.
type Runtime struct {
	key        string
	generation int
	world      *World
	tracker    Tracker
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	revoked bool
}

// NewRuntime creates a runtime for one load of module key. The runtime's
// context ends when parent ends or when Revoke is called.
func NewRuntime(parent context.Context, key string, generation int, world *World, tracker Tracker) *Runtime {
	ctx, cancel := context.WithCancel(parent)
	return &Runtime{
		key:        key,
		generation: generation,
		world:      world,
		tracker:    tracker,
		logger:     log.With().Str("module", key).Int("generation", generation).Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (rt *Runtime) Key() string              { return rt.key }
func (rt *Runtime) Generation() int          { return rt.generation }
func (rt *Runtime) Context() context.Context { return rt.ctx }
func (rt *Runtime) Logger() *zerolog.Logger  { return &rt.logger }

// Revoke withdraws every capability. It waits for helpers already in flight,
// so nothing is tracked under the runtime's key after Revoke returns.
func (rt *Runtime) Revoke() {
	rt.mu.Lock()
	rt.revoked = true
	rt.mu.Unlock()
	rt.cancel()
}

func (rt *Runtime) Revoked() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.revoked
}

// enter holds the runtime open for the duration of one helper call.
func (rt *Runtime) enter(op string) (func(), error) {
	rt.mu.RLock()
	if rt.revoked {
		rt.mu.RUnlock()
		return nil, fmt.Errorf("scene.Runtime.%s: %w", op, ErrRevoked)
	}
	return rt.mu.RUnlock, nil
}

// ---------------------------------------------------------------------------
// Entities
// ---------------------------------------------------------------------------

// Spawn adds a custom entity owned by this module.
func (rt *Runtime) Spawn(e Entity) (EntityID, error) {
	leave, err := rt.enter("Spawn")
	if err != nil {
		return "", err
	}
	defer leave()
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	return rt.spawn(e)
}

func (rt *Runtime) spawn(e Entity, disposables ...Disposable) (EntityID, error) {
	e.Module = rt.key
	out, err := rt.spawnChecked(e)
	if err != nil {
		for _, d := range disposables {
			_ = d.Dispose()
		}
		return "", err
	}
	rt.tracker.Track(rt.key, out.ID, disposables...)
	return out.ID, nil
}

func (rt *Runtime) spawnChecked(e Entity) (Entity, error) {
	if e.Parent != "" {
		if err := rt.owned(e.Parent); err != nil {
			return Entity{}, err
		}
	}
	return rt.world.Spawn(e)
}

func (rt *Runtime) mesh(kind Kind, spec MeshSpec, geometry map[string]any) (EntityID, error) {
	geo := rt.world.AddResource(ResourceGeometry, rt.key, geometry)
	mat := rt.world.AddResource(ResourceMaterial, rt.key, map[string]any{
		"color":     spec.Color,
		"metalness": spec.Metalness,
		"roughness": spec.Roughness,
	})
	return rt.spawn(Entity{
		Kind:     kind,
		Name:     spec.Name,
		Parent:   spec.Parent,
		Position: spec.Position,
		Rotation: spec.Rotation,
		Scale:    spec.Scale,
		Color:    spec.Color,
		Geometry: geo.ID,
		Material: mat.ID,
		Body:     spec.Body,
	}, rt.resourceDisposer(geo.ID), rt.resourceDisposer(mat.ID))
}

// Box creates a box mesh. Size defaults to a unit cube.
func (rt *Runtime) Box(spec MeshSpec) (EntityID, error) {
	leave, err := rt.enter("Box")
	if err != nil {
		return "", err
	}
	defer leave()
	size := spec.Size
	if size == (Vec3{}) {
		size = V(1, 1, 1)
	}
	return rt.mesh(KindBox, spec, map[string]any{"shape": "box", "width": size.X, "height": size.Y, "depth": size.Z})
}

// Sphere creates a sphere mesh. Radius defaults to 0.5.
func (rt *Runtime) Sphere(spec MeshSpec) (EntityID, error) {
	leave, err := rt.enter("Sphere")
	if err != nil {
		return "", err
	}
	defer leave()
	radius := spec.Radius
	if radius <= 0 {
		radius = 0.5
	}
	return rt.mesh(KindSphere, spec, map[string]any{"shape": "sphere", "radius": radius})
}

// Plane creates a flat plane using Size.X and Size.Z.
func (rt *Runtime) Plane(spec MeshSpec) (EntityID, error) {
	leave, err := rt.enter("Plane")
	if err != nil {
		return "", err
	}
	defer leave()
	size := spec.Size
	if size.X == 0 || size.Z == 0 {
		size = V(10, 0, 10)
	}
	return rt.mesh(KindPlane, spec, map[string]any{"shape": "plane", "width": size.X, "depth": size.Z})
}

// Label creates a floating text label.
func (rt *Runtime) Label(text string, pos Vec3) (EntityID, error) {
	leave, err := rt.enter("Label")
	if err != nil {
		return "", err
	}
	defer leave()
	return rt.spawn(Entity{Kind: KindLabel, Text: text, Position: pos})
}

// Light creates a light of the given type ("ambient", "directional", "point", "spot").
func (rt *Runtime) Light(kind, color string, intensity float64, pos Vec3) (EntityID, error) {
	leave, err := rt.enter("Light")
	if err != nil {
		return "", err
	}
	defer leave()
	return rt.spawn(Entity{
		Kind:     KindLight,
		Color:    color,
		Position: pos,
		Props:    map[string]any{"type": kind, "intensity": intensity},
	})
}

// Model places a glTF model loaded by the client from url.
func (rt *Runtime) Model(url string, pos Vec3) (EntityID, error) {
	leave, err := rt.enter("Model")
	if err != nil {
		return "", err
	}
	defer leave()
	if url == "" {
		return "", errors.New("scene.Runtime.Model: empty url")
	}
	tex := rt.world.AddResource(ResourceTexture, rt.key, map[string]any{"url": url})
	e := Entity{Kind: KindModel, URL: url, Position: pos}
	return rt.spawn(e, rt.resourceDisposer(tex.ID))
}

// Group creates an empty parent node.
func (rt *Runtime) Group(name string, pos Vec3) (EntityID, error) {
	leave, err := rt.enter("Group")
	if err != nil {
		return "", err
	}
	defer leave()
	return rt.spawn(Entity{Kind: KindGroup, Name: name, Position: pos})
}

// Entities lists the entities this module owns.
func (rt *Runtime) Entities() []Entity {
	return rt.world.ByModule(rt.key)
}

func (rt *Runtime) owned(id EntityID) error {
	e, ok := rt.world.Get(id)
	if !ok {
		return fmt.Errorf("scene.Runtime: %q: %w", id, ErrEntityNotFound)
	}
	if e.Module != rt.key {
		return fmt.Errorf("scene.Runtime: %q: %w", id, ErrNotOwned)
	}
	return nil
}

func (rt *Runtime) update(op string, id EntityID, fn func(*Entity)) error {
	leave, err := rt.enter(op)
	if err != nil {
		return err
	}
	defer leave()
	if err := rt.owned(id); err != nil {
		return err
	}
	_, err = rt.world.Update(id, fn)
	return err
}

func (rt *Runtime) Move(id EntityID, pos Vec3) error {
	return rt.update("Move", id, func(e *Entity) { e.Position = pos })
}

func (rt *Runtime) Rotate(id EntityID, rot Vec3) error {
	return rt.update("Rotate", id, func(e *Entity) { e.Rotation = rot })
}

func (rt *Runtime) Scale(id EntityID, scale Vec3) error {
	return rt.update("Scale", id, func(e *Entity) { e.Scale = scale })
}

func (rt *Runtime) SetColor(id EntityID, color string) error {
	return rt.update("SetColor", id, func(e *Entity) { e.Color = color })
}

// SetProp sets a free-form property mirrored to clients.
func (rt *Runtime) SetProp(id EntityID, name string, value any) error {
	return rt.update("SetProp", id, func(e *Entity) {
		if e.Props == nil {
			e.Props = make(map[string]any)
		}
		e.Props[name] = value
	})
}

// Attach gives an entity a physics body.
func (rt *Runtime) Attach(id EntityID, body Body) error {
	if body.Type == "" {
		body.Type = "dynamic"
	}
	return rt.update("Attach", id, func(e *Entity) { e.Body = &body })
}

// Remove deletes one of this module's entities and releases what was tracked with it.
func (rt *Runtime) Remove(id EntityID) error {
	leave, err := rt.enter("Remove")
	if err != nil {
		return err
	}
	defer leave()
	if err := rt.owned(id); err != nil {
		return err
	}
	return rt.tracker.Release(rt.key, id)
}

// ---------------------------------------------------------------------------
// Resources and cleanups
// ---------------------------------------------------------------------------

func (rt *Runtime) resourceDisposer(id ResourceID) Disposable {
	return DisposeFunc(func() error { return rt.world.DisposeResource(id) })
}

// Geometry allocates a standalone geometry, released at teardown.
func (rt *Runtime) Geometry(shape string, params map[string]any) (ResourceID, error) {
	return rt.resource("Geometry", ResourceGeometry, "shape", shape, params)
}

// Material allocates a standalone material, released at teardown.
func (rt *Runtime) Material(color string, params map[string]any) (ResourceID, error) {
	return rt.resource("Material", ResourceMaterial, "color", color, params)
}

func (rt *Runtime) resource(op string, kind ResourceKind, k, v string, params map[string]any) (ResourceID, error) {
	leave, err := rt.enter(op)
	if err != nil {
		return "", err
	}
	defer leave()
	p := map[string]any{k: v}
	for pk, pv := range params {
		p[pk] = pv
	}
	r := rt.world.AddResource(kind, rt.key, p)
	rt.tracker.TrackCleanup(rt.key, rt.resourceDisposer(r.ID))
	return r.ID, nil
}

// Track attaches extra disposables to an entity this module owns.
func (rt *Runtime) Track(id EntityID, disposables ...Disposable) error {
	leave, err := rt.enter("Track")
	if err != nil {
		return err
	}
	defer leave()
	if err := rt.owned(id); err != nil {
		return err
	}
	rt.tracker.Track(rt.key, id, disposables...)
	return nil
}

// Cleanup registers fn to run when the module is torn down.
func (rt *Runtime) Cleanup(fn func()) error {
	leave, err := rt.enter("Cleanup")
	if err != nil {
		return err
	}
	defer leave()
	rt.tracker.TrackCleanup(rt.key, DisposeFunc(func() error {
		fn()
		return nil
	}))
	return nil
}

// ---------------------------------------------------------------------------
// Timers and listeners
// ---------------------------------------------------------------------------

// Every runs fn every d until the module is torn down or the returned stop
// func is called.
func (rt *Runtime) Every(d time.Duration, fn func()) (func(), error) {
	return rt.timer("Every", d, fn, true)
}

// After runs fn once after d unless the module is torn down first.
func (rt *Runtime) After(d time.Duration, fn func()) (func(), error) {
	return rt.timer("After", d, fn, false)
}

func (rt *Runtime) timer(op string, d time.Duration, fn func(), repeat bool) (func(), error) {
	leave, err := rt.enter(op)
	if err != nil {
		return nil, err
	}
	defer leave()
	if d <= 0 {
		return nil, fmt.Errorf("scene.Runtime.%s: interval must be positive", op)
	}

	ctx, cancel := context.WithCancel(rt.ctx)
	go func() {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				rt.invoke(op, fn)
				if !repeat {
					cancel()
					return
				}
			}
		}
	}()

	rt.tracker.TrackCleanup(rt.key, DisposeFunc(func() error {
		cancel()
		return nil
	}))
	return cancel, nil
}

// OnFrame runs fn on every world step with the frame delta in seconds.
func (rt *Runtime) OnFrame(fn func(dt float64)) error {
	leave, err := rt.enter("OnFrame")
	if err != nil {
		return err
	}
	defer leave()
	off := rt.world.OnFrame(func(dt float64) {
		if rt.ctx.Err() != nil {
			return
		}
		rt.invoke("OnFrame", func() { fn(dt) })
	})
	rt.tracker.TrackCleanup(rt.key, DisposeFunc(func() error {
		off()
		return nil
	}))
	return nil
}

// On subscribes fn to a world topic such as a client interaction.
func (rt *Runtime) On(topic string, fn func(payload map[string]any)) error {
	leave, err := rt.enter("On")
	if err != nil {
		return err
	}
	defer leave()
	off := rt.world.On(topic, func(p map[string]any) {
		if rt.ctx.Err() != nil {
			return
		}
		rt.invoke("On", func() { fn(p) })
	})
	rt.tracker.TrackCleanup(rt.key, DisposeFunc(func() error {
		off()
		return nil
	}))
	return nil
}

// Emit publishes on the world topic bus.
func (rt *Runtime) Emit(topic string, payload map[string]any) error {
	leave, err := rt.enter("Emit")
	if err != nil {
		return err
	}
	leave()
	rt.world.Emit(topic, payload)
	return nil
}

// Log writes a module-scoped log line.
func (rt *Runtime) Log(args ...any) {
	rt.logger.Info().Msg(fmt.Sprint(args...))
}

// invoke runs a module callback, turning a panic into a log line.
func (rt *Runtime) invoke(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error().Interface("panic", r).Msg("scene.Runtime." + op + ": callback panicked")
		}
	}()
	fn()
}
