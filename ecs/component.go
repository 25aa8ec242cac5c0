package ecs

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"unsafe"

	"github.com/veldtlabs/veldt/bitset"
)

// ComponentID is the dense integer identity of a component type.
type ComponentID uint32

var (
	// ErrStaleEntity is returned for an entity id whose slot was reused or
	// that was never spawned.
	ErrStaleEntity = errors.New("ecs: unknown or stale entity")
	// ErrComponentPresent is returned when inserting a component the entity
	// already has.
	ErrComponentPresent = errors.New("ecs: component already present")
	// ErrComponentMissing is returned when removing a component the entity
	// lacks.
	ErrComponentMissing = errors.New("ecs: component not present")
	// ErrComponentInUse is returned when removing a component type still
	// referenced by at least one archetype.
	ErrComponentInUse = errors.New("ecs: component type still referenced by archetypes")
	// ErrUnknownComponent is returned for a component id that was never
	// registered or was removed.
	ErrUnknownComponent = errors.New("ecs: unknown component id")
)

// ComponentInfo records everything the storage engine needs to know about a
// component type: its layout, its optional destructor, and the set of
// archetypes currently holding a column of it. It is created once per
// distinct type.
type ComponentInfo struct {
	typ     reflect.Type
	size    uintptr
	align   int
	drop    func(unsafe.Pointer)
	members bitset.Set[archetypeID]
}

// Type returns the component's Go type.
func (ci *ComponentInfo) Type() reflect.Type { return ci.typ }

// Size returns the component's element size in bytes.
func (ci *ComponentInfo) Size() uintptr { return ci.size }

// Align returns the component's alignment requirement in bytes.
func (ci *ComponentInfo) Align() int { return ci.align }

// componentRegistry assigns stable dense ids to component types. Ids are
// allocated monotonically and never reused after removal, trading id-space
// growth for migration simplicity.
type componentRegistry struct {
	byType map[reflect.Type]ComponentID
	infos  []*ComponentInfo // indexed by id; nil once removed
}

func newComponentRegistry() componentRegistry {
	return componentRegistry{
		byType: make(map[reflect.Type]ComponentID, 16),
	}
}

// register returns the existing id if this exact type was seen before,
// otherwise it allocates the next id and records the type's layout and
// destructor. Id-space exhaustion is fatal and reported here.
func (r *componentRegistry) register(typ reflect.Type, drop func(unsafe.Pointer)) ComponentID {
	if id, ok := r.byType[typ]; ok {
		return id
	}
	if len(r.infos) >= math.MaxUint32 {
		panic(fmt.Sprintf("ecs: component id space exhausted registering %s", typ))
	}
	id := ComponentID(len(r.infos))
	r.infos = append(r.infos, &ComponentInfo{
		typ:   typ,
		size:  typ.Size(),
		align: typ.Align(),
		drop:  drop,
	})
	r.byType[typ] = id
	return id
}

// info returns the metadata for id, or nil for unknown/removed ids.
func (r *componentRegistry) info(id ComponentID) *ComponentInfo {
	if int(id) >= len(r.infos) {
		return nil
	}
	return r.infos[id]
}

// remove deletes a component type. Permitted only while no archetype holds a
// column of it; the id is retired, never reallocated.
func (r *componentRegistry) remove(id ComponentID) error {
	info := r.info(id)
	if info == nil {
		return fmt.Errorf("remove component %d: %w", id, ErrUnknownComponent)
	}
	if !info.members.IsEmpty() {
		return fmt.Errorf("remove component %d (%s): %w", id, info.typ, ErrComponentInUse)
	}
	delete(r.byType, info.typ)
	r.infos[id] = nil
	return nil
}

// lookup returns the id for typ if it is registered.
func (r *componentRegistry) lookup(typ reflect.Type) (ComponentID, bool) {
	id, ok := r.byType[typ]
	return id, ok
}
