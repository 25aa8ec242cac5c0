package ecs

import (
	"fmt"
	"unsafe"

	"github.com/veldtlabs/veldt/bitset"
	"github.com/veldtlabs/veldt/boolexpr"
)

// Access is the kind of access a query declares for one component.
type Access uint8

const (
	// Read grants shared, read-only access.
	Read Access = iota
	// Write grants exclusive, mutable access.
	Write
)

// ComponentAccess pairs a component with the access a query requests for it.
type ComponentAccess struct {
	Component ComponentID
	Access    Access
}

// Filter is a declarative predicate over archetype shapes, built from
// presence combinators and compiled to a boolean expression over component
// ids. The zero Filter matches every archetype.
type Filter struct {
	expr *boolexpr.Expr[ComponentID]
}

func (f Filter) compiled() *boolexpr.Expr[ComponentID] {
	if f.expr == nil {
		return boolexpr.One[ComponentID]()
	}
	return f.expr
}

// With matches archetypes whose shape contains cid.
func With(cid ComponentID) Filter {
	return Filter{expr: boolexpr.With(cid)}
}

// Without matches archetypes whose shape lacks cid.
func Without(cid ComponentID) Filter {
	return Filter{expr: boolexpr.Without(cid)}
}

// MatchAll matches every archetype.
func MatchAll() Filter {
	return Filter{expr: boolexpr.One[ComponentID]()}
}

// And narrows f to shapes also matching g.
func (f Filter) And(g Filter) Filter {
	return Filter{expr: f.compiled().And(g.compiled())}
}

// Or widens f to shapes matching either side.
func (f Filter) Or(g Filter) Filter {
	return Filter{expr: f.compiled().Or(g.compiled())}
}

// Not inverts f.
func (f Filter) Not() Filter {
	return Filter{expr: f.compiled().Not()}
}

// Xor matches shapes satisfying exactly one of f and g.
func (f Filter) Xor(g Filter) Filter {
	return Filter{expr: f.compiled().Xor(g.compiled())}
}

// Query is a compiled filter plus access list. Archetype matches are cached
// and recomputed only when the archetype set changes.
type Query struct {
	w       *World
	expr    *boolexpr.Expr[ComponentID]
	reads   bitset.Set[ComponentID]
	writes  bitset.Set[ComponentID]
	matches []archetypeID
	version uint32
	fresh   bool
}

// NewQuery compiles filter and access into a query. Every accessed component
// becomes a required-presence variable ANDed into the filter expression.
// Requesting both read and write, or two writes, of the same component is
// rejected here.
func (w *World) NewQuery(filter Filter, access ...ComponentAccess) (*Query, error) {
	q := &Query{w: w, expr: filter.compiled()}
	for _, ca := range access {
		if w.components.info(ca.Component) == nil {
			return nil, fmt.Errorf("query access on component %d: %w", ca.Component, ErrUnknownComponent)
		}
		switch ca.Access {
		case Write:
			if q.writes.Contains(ca.Component) || q.reads.Contains(ca.Component) {
				return nil, fmt.Errorf("query declares component %d more than once with a write: %w", ca.Component, ErrConflictingAccess)
			}
			q.writes.Insert(ca.Component)
		default:
			if q.writes.Contains(ca.Component) {
				return nil, fmt.Errorf("query declares component %d as both read and write: %w", ca.Component, ErrConflictingAccess)
			}
			q.reads.Insert(ca.Component)
		}
		q.expr = q.expr.And(boolexpr.With(ca.Component))
	}
	return q, nil
}

// refresh recomputes the match cache when the archetype set has changed
// since it was built.
func (q *Query) refresh() {
	store := &q.w.archetypes
	if q.fresh && q.version == store.version {
		return
	}
	q.matches = q.matches[:0]
	store.eachLive(func(a *archetype) bool {
		if q.shapeMatches(a) {
			q.matches = append(q.matches, a.id)
		}
		return true
	})
	q.version = store.version
	q.fresh = true
}

// shapeMatches evaluates the compiled expression against one archetype's
// shape.
func (q *Query) shapeMatches(a *archetype) bool {
	return q.expr.Eval(func(cid ComponentID) bool { return a.shapeSet.Contains(cid) })
}

// Iter begins a lazy, restartable iteration over every entity in a matching
// archetype. The iterator is only valid within the call scope that produced
// it; structural mutation during iteration is allowed because every access
// re-resolves the entity's location instead of caching storage addresses.
func (q *Query) Iter() *Iter {
	q.refresh()
	return &Iter{q: q, row: -1, version: q.version}
}

// Iter yields per-entity views granting exactly the access the query
// declared.
type Iter struct {
	q       *Query
	archPos int
	row     int
	version uint32
	cur     EntityID
}

// Next advances to the next matching entity. Archetypes torn down since the
// match cache was built are skipped; when the store changed mid-iteration, a
// cached id may also have been recycled for a different shape, so the shape
// is re-checked before any of its rows are yielded. It must return true
// before Entity or any accessor is used.
func (it *Iter) Next() bool {
	store := &it.q.w.archetypes
	for {
		if it.archPos >= len(it.q.matches) {
			return false
		}
		a := store.archetypes[it.q.matches[it.archPos]]
		if a == nil || (store.version != it.version && !it.q.shapeMatches(a)) {
			it.archPos++
			it.row = -1
			continue
		}
		it.row++
		if it.row >= len(a.entities) {
			it.archPos++
			it.row = -1
			continue
		}
		it.cur = a.entities[it.row]
		return true
	}
}

// Entity returns the current entity.
func (it *Iter) Entity() EntityID {
	return it.cur
}

// Read returns a read view of cid for the current entity. The query must
// have declared read or write access to cid.
func (it *Iter) Read(cid ComponentID) unsafe.Pointer {
	if !it.q.reads.Contains(cid) && !it.q.writes.Contains(cid) {
		panic(fmt.Sprintf("ecs: query did not declare read access to component %d", cid))
	}
	return it.resolve(cid)
}

// Write returns a mutable view of cid for the current entity. The query must
// have declared write access to cid.
func (it *Iter) Write(cid ComponentID) unsafe.Pointer {
	if !it.q.writes.Contains(cid) {
		panic(fmt.Sprintf("ecs: query did not declare write access to component %d", cid))
	}
	return it.resolve(cid)
}

// resolve re-validates the entity's location through the directory on every
// access. Handlers running between accesses may migrate or despawn entities,
// so raw storage addresses are never held across calls.
func (it *Iter) resolve(cid ComponentID) unsafe.Pointer {
	w := it.q.w
	m := w.entities.lookup(it.cur)
	if m == nil {
		panic(fmt.Sprintf("ecs: entity %d/%d no longer alive during query access", it.cur.Index(), it.cur.Generation()))
	}
	a := w.archetypes.get(m.arch)
	slot := a.slot(cid)
	if slot < 0 {
		panic(fmt.Sprintf("ecs: component %d no longer present on entity %d during query access", cid, it.cur.Index()))
	}
	return a.columns[slot].get(int(m.row))
}

// ReadComponent is the typed convenience form of Iter.Read.
func ReadComponent[T any](it *Iter) *T {
	cid, ok := it.q.w.components.lookup(typeOf[T]())
	if !ok {
		panic(fmt.Sprintf("ecs: component type %v not registered", typeOf[T]()))
	}
	return (*T)(it.Read(cid))
}

// WriteComponent is the typed convenience form of Iter.Write.
func WriteComponent[T any](it *Iter) *T {
	cid, ok := it.q.w.components.lookup(typeOf[T]())
	if !ok {
		panic(fmt.Sprintf("ecs: component type %v not registered", typeOf[T]()))
	}
	return (*T)(it.Write(cid))
}
