package ecs

import (
	"sort"
	"unsafe"

	"go.uber.org/zap"

	"github.com/veldtlabs/veldt/bitset"
)

// archetypeID identifies one archetype. Ids are recycled when an archetype is
// torn down, so they are never exposed outside the package and must not be
// retained across a structural-change call.
type archetypeID uint32

// emptyArchetype holds entities with zero components. It always exists and is
// never torn down.
const emptyArchetype archetypeID = 0

// archetype groups every entity sharing an identical component set into one
// column table. All columns hold exactly len(entities) rows at all times.
type archetype struct {
	id       archetypeID
	shape    []ComponentID // canonical ascending order
	shapeSet bitset.Set[ComponentID]
	columns  []column // parallel to shape
	entities []EntityID
}

// slot returns the column index of cid within this archetype, or -1.
func (a *archetype) slot(cid ComponentID) int {
	i := sort.Search(len(a.shape), func(i int) bool { return a.shape[i] >= cid })
	if i < len(a.shape) && a.shape[i] == cid {
		return i
	}
	return -1
}

// archetypeStore owns every archetype and performs entity migration between
// them on structural change. Archetypes form an implicit graph connected by
// single-component add/remove edges; edges are resolved lazily through the
// shape map and never precomputed.
type archetypeStore struct {
	byShape    map[string]archetypeID
	archetypes []*archetype // indexed by id, nil holes after teardown
	freeIDs    []archetypeID
	version    uint32 // bumped whenever the archetype set changes
	log        *zap.Logger
}

func newArchetypeStore(log *zap.Logger) archetypeStore {
	s := archetypeStore{
		byShape: make(map[string]archetypeID, 16),
		log:     log,
	}
	// Pin the empty archetype at id 0.
	s.getOrCreate(nil, nil)
	return s
}

// shapeKey builds the canonical map key for a sorted component id sequence.
func shapeKey(shape []ComponentID) string {
	buf := make([]byte, 0, len(shape)*4)
	for _, id := range shape {
		buf = append(buf, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
	}
	return string(buf)
}

func (s *archetypeStore) get(id archetypeID) *archetype {
	return s.archetypes[id]
}

// getOrCreate resolves the archetype for a canonical shape, creating it and
// its columns on first use. shape must be sorted ascending.
func (s *archetypeStore) getOrCreate(shape []ComponentID, reg *componentRegistry) *archetype {
	key := shapeKey(shape)
	if id, ok := s.byShape[key]; ok {
		return s.archetypes[id]
	}

	var id archetypeID
	if n := len(s.freeIDs); n > 0 {
		id = s.freeIDs[n-1]
		s.freeIDs = s.freeIDs[:n-1]
	} else {
		id = archetypeID(len(s.archetypes))
		s.archetypes = append(s.archetypes, nil)
	}

	a := &archetype{
		id:      id,
		shape:   append([]ComponentID(nil), shape...),
		columns: make([]column, len(shape)),
	}
	for i, cid := range shape {
		info := reg.info(cid)
		a.columns[i] = newColumn(info)
		a.shapeSet.Insert(cid)
		info.members.Insert(id)
	}
	s.archetypes[id] = a
	s.byShape[key] = id
	s.version++
	if s.log != nil {
		s.log.Debug("archetype created", zap.Uint32("archetype", uint32(id)), zap.Int("components", len(shape)))
	}
	return a
}

// teardown releases an archetype's columns and recycles its id. Only called
// once the archetype holds no rows; the empty archetype is never torn down.
func (s *archetypeStore) teardown(a *archetype, reg *componentRegistry) {
	for i := range a.columns {
		a.columns[i].release()
		reg.info(a.shape[i]).members.Remove(a.id)
	}
	delete(s.byShape, shapeKey(a.shape))
	s.archetypes[a.id] = nil
	s.freeIDs = append(s.freeIDs, a.id)
	s.version++
	if s.log != nil {
		s.log.Debug("archetype torn down", zap.Uint32("archetype", uint32(a.id)))
	}
}

// insertRow appends one row for e across all columns and returns its index.
// Columns are reserved up front so a capacity failure cannot leave them at
// mismatched lengths; every pushed slot is uninitialized until the caller
// writes it.
func (a *archetype) insertRow(e EntityID) int {
	for i := range a.columns {
		a.columns[i].reserve(1)
	}
	for i := range a.columns {
		a.columns[i].push()
	}
	a.entities = append(a.entities, e)
	return len(a.entities) - 1
}

// removeRow destroys the row's values in every column (when destroy is set),
// backfills the vacated row from the last one, and repoints the backfilled
// entity's directory entry.
func (a *archetype) removeRow(row int, destroy bool, dir *entityDirectory) {
	for i := range a.columns {
		if destroy {
			a.columns[i].swapRemove(row)
		} else {
			a.columns[i].swapRemoveNoDrop(row)
		}
	}
	a.compactEntities(row, dir)
}

// compactEntities mirrors a column swap-remove in the row→entity table.
func (a *archetype) compactEntities(row int, dir *entityDirectory) {
	last := len(a.entities) - 1
	if row != last {
		moved := a.entities[last]
		a.entities[row] = moved
		dir.metas[moved.Index()].row = int32(row)
	}
	a.entities = a.entities[:last]
}

// addComponentRow migrates e from its current archetype to the one whose
// shape additionally contains cid and returns the uninitialized slot for the
// new component value. The caller writes the value before anything reads it.
func (s *archetypeStore) addComponentRow(reg *componentRegistry, dir *entityDirectory, m *entityMeta, cid ComponentID) unsafe.Pointer {
	src := s.archetypes[m.arch]
	row := int(m.row)

	shape := make([]ComponentID, 0, len(src.shape)+1)
	inserted := false
	for _, id := range src.shape {
		if !inserted && cid < id {
			shape = append(shape, cid)
			inserted = true
		}
		shape = append(shape, id)
	}
	if !inserted {
		shape = append(shape, cid)
	}
	dst := s.getOrCreate(shape, reg)

	// Reserve every destination column before any column is written.
	for i := range dst.columns {
		dst.columns[i].reserve(1)
	}

	e := src.entities[row]
	for i, id := range src.shape {
		src.columns[i].transferElem(&dst.columns[dst.slot(id)], row)
	}
	slot := dst.columns[dst.slot(cid)].push()
	dst.entities = append(dst.entities, e)

	src.compactEntities(row, dir)

	m.arch = dst.id
	m.row = int32(len(dst.entities) - 1)

	if len(src.entities) == 0 && src.id != emptyArchetype {
		s.teardown(src, reg)
	}
	return slot
}

// removeComponentRow migrates e from its current archetype to the one whose
// shape lacks cid. The removed column's value is destroyed in place.
func (s *archetypeStore) removeComponentRow(reg *componentRegistry, dir *entityDirectory, m *entityMeta, cid ComponentID) {
	src := s.archetypes[m.arch]
	row := int(m.row)

	shape := make([]ComponentID, 0, len(src.shape)-1)
	for _, id := range src.shape {
		if id != cid {
			shape = append(shape, id)
		}
	}
	dst := s.getOrCreate(shape, reg)

	for i := range dst.columns {
		dst.columns[i].reserve(1)
	}

	e := src.entities[row]
	for i, id := range src.shape {
		if id == cid {
			src.columns[i].swapRemove(row)
			continue
		}
		src.columns[i].transferElem(&dst.columns[dst.slot(id)], row)
	}
	dst.entities = append(dst.entities, e)

	src.compactEntities(row, dir)

	m.arch = dst.id
	m.row = int32(len(dst.entities) - 1)

	if len(src.entities) == 0 && src.id != emptyArchetype {
		s.teardown(src, reg)
	}
}

// eachLive calls fn for every live archetype.
func (s *archetypeStore) eachLive(fn func(*archetype) bool) {
	for _, a := range s.archetypes {
		if a == nil {
			continue
		}
		if !fn(a) {
			return
		}
	}
}
