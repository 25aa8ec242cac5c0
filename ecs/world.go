package ecs

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"

	"go.uber.org/zap"
)

// World composes the component registry, archetype store, entity directory,
// and event engine behind one facade. A World is single-threaded: all
// mutation happens synchronously on the caller's stack, and aliasing between
// re-entrant event handlers is checked instead of locked.
type World struct {
	log        *zap.Logger
	components componentRegistry
	entities   entityDirectory
	archetypes archetypeStore
	engine     eventEngine
}

// Option configures a World at construction.
type Option func(*worldOptions)

type worldOptions struct {
	log             *zap.Logger
	initialCapacity int
}

// WithLogger attaches a structured logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *worldOptions) { o.log = log }
}

// WithInitialEntityCapacity pre-sizes the entity directory.
func WithInitialEntityCapacity(n int) Option {
	return func(o *worldOptions) { o.initialCapacity = n }
}

// NewWorld creates an empty world containing only the distinguished empty
// archetype.
func NewWorld(opts ...Option) *World {
	o := worldOptions{
		log:             zap.NewNop(),
		initialCapacity: 1024,
	}
	for _, opt := range opts {
		opt(&o)
	}
	w := &World{
		log:        o.log,
		components: newComponentRegistry(),
		entities:   newEntityDirectory(o.initialCapacity),
		archetypes: newArchetypeStore(o.log),
		engine:     newEventEngine(o.log),
	}
	return w
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// RegisterComponent assigns (or returns) the dense id for component type T.
func RegisterComponent[T any](w *World) ComponentID {
	return w.components.register(typeOf[T](), nil)
}

// RegisterComponentWithDestructor registers T with a destructor that runs
// exactly once when a value is destroyed: on explicit removal, on despawn,
// or at archetype teardown. Migration between archetypes moves values
// without destroying them.
func RegisterComponentWithDestructor[T any](w *World, dispose func(*T)) ComponentID {
	return w.components.register(typeOf[T](), func(p unsafe.Pointer) {
		dispose((*T)(p))
	})
}

// ComponentIDOf returns the id previously assigned to T.
func ComponentIDOf[T any](w *World) (ComponentID, bool) {
	return w.components.lookup(typeOf[T]())
}

// ComponentInfo returns the layout metadata recorded for a registered
// component id.
func (w *World) ComponentInfo(id ComponentID) (*ComponentInfo, bool) {
	info := w.components.info(id)
	return info, info != nil
}

// RemoveComponentType retires a component id. Only permitted while no
// archetype references it; the id is never reallocated.
func (w *World) RemoveComponentType(id ComponentID) error {
	if err := w.components.remove(id); err != nil {
		w.log.Warn("component type removal rejected", zap.Uint32("component", uint32(id)), zap.Error(err))
		return err
	}
	return nil
}

// Spawn creates a new entity with zero components in the empty archetype.
func (w *World) Spawn() EntityID {
	e := w.entities.alloc()
	a := w.archetypes.get(emptyArchetype)
	row := a.insertRow(e)
	m := &w.entities.metas[e.Index()]
	m.arch = emptyArchetype
	m.row = int32(row)
	return e
}

// Despawn destroys an entity and every component value it holds. It returns
// false for unknown or stale ids.
func (w *World) Despawn(e EntityID) bool {
	m := w.entities.lookup(e)
	if m == nil {
		return false
	}
	a := w.archetypes.get(m.arch)
	a.removeRow(int(m.row), true, &w.entities)
	w.entities.free(e)
	return true
}

// Alive reports whether e refers to a live entity.
func (w *World) Alive(e EntityID) bool {
	return w.entities.lookup(e) != nil
}

// EntityCount returns the number of live entities.
func (w *World) EntityCount() int {
	return w.entities.count()
}

// Insert attaches a component value to an entity, migrating it to the
// archetype containing the extended shape. Inserting a component the entity
// already has is reported and leaves the world unchanged.
func Insert[T any](w *World, e EntityID, value T) error {
	cid := RegisterComponent[T](w)
	slot, err := w.insertSlot(e, cid)
	if err != nil {
		return err
	}
	*(*T)(slot) = value
	return nil
}

// insertSlot migrates e to its extended archetype and returns the
// uninitialized slot for the new component value.
func (w *World) insertSlot(e EntityID, cid ComponentID) (unsafe.Pointer, error) {
	m := w.entities.lookup(e)
	if m == nil {
		w.log.Warn("insert on dead entity", zap.Uint32("index", e.Index()), zap.Uint32("generation", e.Generation()))
		return nil, fmt.Errorf("insert component %d: %w", cid, ErrStaleEntity)
	}
	if w.archetypes.get(m.arch).shapeSet.Contains(cid) {
		return nil, fmt.Errorf("insert component %d: %w", cid, ErrComponentPresent)
	}
	return w.archetypes.addComponentRow(&w.components, &w.entities, m, cid), nil
}

// Remove detaches component T from an entity, destroying its value.
func Remove[T any](w *World, e EntityID) error {
	cid, ok := ComponentIDOf[T](w)
	if !ok {
		return fmt.Errorf("remove %v: %w", typeOf[T](), ErrUnknownComponent)
	}
	return w.RemoveComponent(e, cid)
}

// RemoveComponent detaches a component by id, destroying its value and
// migrating the entity to the reduced archetype. Removing a component the
// entity lacks is reported and leaves the world unchanged.
func (w *World) RemoveComponent(e EntityID, cid ComponentID) error {
	m := w.entities.lookup(e)
	if m == nil {
		w.log.Warn("remove on dead entity", zap.Uint32("index", e.Index()), zap.Uint32("generation", e.Generation()))
		return fmt.Errorf("remove component %d: %w", cid, ErrStaleEntity)
	}
	if w.components.info(cid) == nil {
		return fmt.Errorf("remove component %d: %w", cid, ErrUnknownComponent)
	}
	if !w.archetypes.get(m.arch).shapeSet.Contains(cid) {
		return fmt.Errorf("remove component %d: %w", cid, ErrComponentMissing)
	}
	w.archetypes.removeComponentRow(&w.components, &w.entities, m, cid)
	return nil
}

// Get returns a pointer to e's component of type T, or false when the entity
// is dead or lacks the component. The pointer is invalidated by the next
// structural change.
func Get[T any](w *World, e EntityID) (*T, bool) {
	cid, ok := ComponentIDOf[T](w)
	if !ok {
		return nil, false
	}
	m := w.entities.lookup(e)
	if m == nil {
		return nil, false
	}
	a := w.archetypes.get(m.arch)
	slot := a.slot(cid)
	if slot < 0 {
		return nil, false
	}
	return (*T)(a.columns[slot].get(int(m.row))), true
}

// HasComponent reports whether a live entity holds cid.
func (w *World) HasComponent(e EntityID, cid ComponentID) bool {
	m := w.entities.lookup(e)
	if m == nil {
		return false
	}
	return w.archetypes.get(m.arch).shapeSet.Contains(cid)
}

// AddSystem registers fn to run whenever an event of type E is dispatched,
// with the declared footprint checked against concurrently-active handlers.
func AddSystem[E any](w *World, fp Footprint, fn func(*World, E)) (SystemID, error) {
	eid := w.engine.eventID(typeOf[E]())
	name := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
	return w.engine.addSystem(eid, name, fp, func(w *World, v any) {
		fn(w, v.(E))
	})
}

// RemoveSystem detaches a previously added system.
func (w *World) RemoveSystem(id SystemID) error {
	return w.engine.removeSystem(id)
}

// EventIDOf returns the dense id for event type E, assigning one if needed.
func EventIDOf[E any](w *World) EventID {
	return w.engine.eventID(typeOf[E]())
}

// Send dispatches an event synchronously. If no dispatch is in progress this
// call drains the full depth-first cascade before returning; when called
// from inside a handler, the event and its entire cascade resolve before
// Send returns to the handler.
func (w *World) Send(ev any) {
	w.engine.send(w, ev)
}

// StopPropagation halts delivery of the event instance currently being
// dispatched; systems later in registration order are skipped for that
// instance only.
func (w *World) StopPropagation() {
	w.engine.halt()
}

// Close tears down every archetype, destroying each remaining component
// value exactly once, and empties the directory. The world must not be used
// afterwards.
func (w *World) Close() {
	w.archetypes.eachLive(func(a *archetype) bool {
		for i := range a.columns {
			a.columns[i].release()
			w.components.info(a.shape[i]).members.Remove(a.id)
		}
		a.entities = nil
		return true
	})
	w.archetypes.archetypes = nil
	w.archetypes.byShape = nil
	w.archetypes.version++
	w.entities.metas = nil
	w.entities.freeIDs = nil
}
