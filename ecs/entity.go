package ecs

// EntityID encodes a 32-bit directory index in the lower bits and a 32-bit
// generation in the upper bits. Indexes are reused after despawn; the
// generation increments on reuse, invalidating stale ids.
type EntityID uint64

func makeEntityID(index, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

// Index returns the directory slot of the entity.
func (id EntityID) Index() uint32 { return uint32(id) }

// Generation returns the reuse generation of the entity's slot.
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }

// entityMeta locates a live entity: the archetype holding its data and the
// row within that archetype's columns. row is -1 for dead slots.
type entityMeta struct {
	generation uint32
	arch       archetypeID
	row        int32
}

// entityDirectory maps entity indexes to their current storage location.
// Invariant: a live entity's (arch, row) always identifies the row currently
// holding its data in exactly one archetype.
type entityDirectory struct {
	metas   []entityMeta
	freeIDs []uint32
}

func newEntityDirectory(initialCapacity int) entityDirectory {
	return entityDirectory{
		metas:   make([]entityMeta, 0, initialCapacity),
		freeIDs: make([]uint32, 0, 64),
	}
}

// alloc claims a directory slot, reusing a freed index when one exists, and
// returns the resulting id. Location fields are set by the caller.
func (d *entityDirectory) alloc() EntityID {
	if n := len(d.freeIDs); n > 0 {
		idx := d.freeIDs[n-1]
		d.freeIDs = d.freeIDs[:n-1]
		return makeEntityID(idx, d.metas[idx].generation)
	}
	idx := uint32(len(d.metas))
	d.metas = append(d.metas, entityMeta{row: -1})
	return makeEntityID(idx, 0)
}

// lookup resolves a live entity to its metadata. It returns nil for unknown
// indexes, stale generations, and dead slots.
func (d *entityDirectory) lookup(id EntityID) *entityMeta {
	idx := id.Index()
	if int(idx) >= len(d.metas) {
		return nil
	}
	m := &d.metas[idx]
	if m.generation != id.Generation() || m.row < 0 {
		return nil
	}
	return m
}

// free releases an entity's slot. The generation bump makes every
// outstanding copy of the id stale; the index goes back on the free list.
func (d *entityDirectory) free(id EntityID) {
	idx := id.Index()
	m := &d.metas[idx]
	m.generation++
	m.row = -1
	d.freeIDs = append(d.freeIDs, idx)
}

// count returns the number of live entities.
func (d *entityDirectory) count() int {
	return len(d.metas) - len(d.freeIDs)
}
