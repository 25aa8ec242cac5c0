package ecs_test

import (
	"errors"
	"testing"

	"github.com/veldtlabs/veldt/ecs"
)

// queryWorld spawns four entities covering the shape lattice over Position
// and Velocity: {P}, {P,V}, {V}, {}.
func queryWorld(t *testing.T) (*ecs.World, [4]ecs.EntityID) {
	t.Helper()
	w := ecs.NewWorld()
	var es [4]ecs.EntityID
	for i := range es {
		es[i] = w.Spawn()
	}
	if err := ecs.Insert(w, es[0], Position{X: 0}); err != nil {
		t.Fatal(err)
	}
	if err := ecs.Insert(w, es[1], Position{X: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ecs.Insert(w, es[1], Velocity{DX: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ecs.Insert(w, es[2], Velocity{DX: 2}); err != nil {
		t.Fatal(err)
	}
	return w, es
}

func collect(t *testing.T, q *ecs.Query) map[ecs.EntityID]bool {
	t.Helper()
	got := map[ecs.EntityID]bool{}
	for it := q.Iter(); it.Next(); {
		if got[it.Entity()] {
			t.Fatalf("entity %d yielded twice", it.Entity().Index())
		}
		got[it.Entity()] = true
	}
	return got
}

func expectEntities(t *testing.T, got map[ecs.EntityID]bool, want ...ecs.EntityID) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("matched %d entities, want %d", len(got), len(want))
	}
	for _, e := range want {
		if !got[e] {
			t.Errorf("entity %d missing from matches", e.Index())
		}
	}
}

func TestFilterSemantics(t *testing.T) {
	w, es := queryWorld(t)
	pos := mustID[Position](t, w)
	vel := mustID[Velocity](t, w)

	cases := []struct {
		name   string
		filter ecs.Filter
		want   []ecs.EntityID
	}{
		{"with", ecs.With(pos), []ecs.EntityID{es[0], es[1]}},
		{"without", ecs.Without(vel), []ecs.EntityID{es[0], es[3]}},
		{"and", ecs.With(pos).And(ecs.Without(vel)), []ecs.EntityID{es[0]}},
		{"or", ecs.With(pos).Or(ecs.With(vel)), []ecs.EntityID{es[0], es[1], es[2]}},
		{"xor", ecs.With(pos).Xor(ecs.With(vel)), []ecs.EntityID{es[0], es[2]}},
		{"not", ecs.With(pos).Not(), []ecs.EntityID{es[2], es[3]}},
		{"all", ecs.MatchAll(), []ecs.EntityID{es[0], es[1], es[2], es[3]}},
		{"zero value", ecs.Filter{}, []ecs.EntityID{es[0], es[1], es[2], es[3]}},
	}
	for _, tc := range cases {
		q, err := w.NewQuery(tc.filter)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		got := collect(t, q)
		if len(got) != len(tc.want) {
			t.Errorf("%s: matched %d entities, want %d", tc.name, len(got), len(tc.want))
			continue
		}
		for _, e := range tc.want {
			if !got[e] {
				t.Errorf("%s: entity %d missing", tc.name, e.Index())
			}
		}
	}
}

func TestAccessedComponentsAreRequired(t *testing.T) {
	w, es := queryWorld(t)
	pos := mustID[Position](t, w)

	// No filter, but read access to Position narrows matches to holders.
	q, err := w.NewQuery(ecs.Filter{}, ecs.ComponentAccess{Component: pos, Access: ecs.Read})
	if err != nil {
		t.Fatal(err)
	}
	expectEntities(t, collect(t, q), es[0], es[1])
}

func TestQueryValidation(t *testing.T) {
	w, _ := queryWorld(t)
	pos := mustID[Position](t, w)

	_, err := w.NewQuery(ecs.Filter{}, ecs.ComponentAccess{Component: ecs.ComponentID(999), Access: ecs.Read})
	if !errors.Is(err, ecs.ErrUnknownComponent) {
		t.Errorf("access to unregistered id: got %v, want ErrUnknownComponent", err)
	}

	_, err = w.NewQuery(ecs.Filter{},
		ecs.ComponentAccess{Component: pos, Access: ecs.Read},
		ecs.ComponentAccess{Component: pos, Access: ecs.Write},
	)
	if !errors.Is(err, ecs.ErrConflictingAccess) {
		t.Errorf("read+write of one component: got %v, want ErrConflictingAccess", err)
	}

	_, err = w.NewQuery(ecs.Filter{},
		ecs.ComponentAccess{Component: pos, Access: ecs.Write},
		ecs.ComponentAccess{Component: pos, Access: ecs.Write},
	)
	if !errors.Is(err, ecs.ErrConflictingAccess) {
		t.Errorf("double write of one component: got %v, want ErrConflictingAccess", err)
	}

	// Duplicate reads are harmless.
	if _, err := w.NewQuery(ecs.Filter{},
		ecs.ComponentAccess{Component: pos, Access: ecs.Read},
		ecs.ComponentAccess{Component: pos, Access: ecs.Read},
	); err != nil {
		t.Errorf("duplicate reads rejected: %v", err)
	}
}

func TestMatchCacheTracksNewArchetypes(t *testing.T) {
	w, es := queryWorld(t)
	pos := mustID[Position](t, w)

	q, err := w.NewQuery(ecs.With(pos))
	if err != nil {
		t.Fatal(err)
	}
	expectEntities(t, collect(t, q), es[0], es[1])

	// A brand new shape containing Position must show up on the next pass.
	e := w.Spawn()
	if err := ecs.Insert(w, e, Position{X: 9}); err != nil {
		t.Fatal(err)
	}
	if err := ecs.Insert(w, e, Health{Current: 1}); err != nil {
		t.Fatal(err)
	}
	expectEntities(t, collect(t, q), es[0], es[1], e)
}

func TestUndeclaredAccessPanics(t *testing.T) {
	w, _ := queryWorld(t)
	pos := mustID[Position](t, w)
	vel := mustID[Velocity](t, w)

	q, err := w.NewQuery(ecs.With(pos).And(ecs.With(vel)),
		ecs.ComponentAccess{Component: pos, Access: ecs.Read},
	)
	if err != nil {
		t.Fatal(err)
	}
	it := q.Iter()
	if !it.Next() {
		t.Fatal("query matched nothing")
	}

	expectPanic(t, "write through read access", func() { it.Write(pos) })
	expectPanic(t, "read of undeclared component", func() { it.Read(vel) })
	expectPanic(t, "typed write through read access", func() { ecs.WriteComponent[Position](it) })
}

func expectPanic(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s did not panic", what)
		}
	}()
	fn()
}

// TestIterSkipsRecycledArchetypeIDs tears down a matched archetype mid
// iteration and lets a fresh, non-matching archetype reuse its id; the
// iterator must not yield that archetype's entities.
func TestIterSkipsRecycledArchetypeIDs(t *testing.T) {
	w := ecs.NewWorld()
	e1 := w.Spawn()
	if err := ecs.Insert(w, e1, Position{X: 1}); err != nil {
		t.Fatal(err)
	}
	pos := mustID[Position](t, w)

	q, err := w.NewQuery(ecs.With(pos))
	if err != nil {
		t.Fatal(err)
	}
	it := q.Iter()
	if !it.Next() {
		t.Fatal("query matched nothing")
	}
	if it.Entity() != e1 {
		t.Fatalf("yielded entity %d, want %d", it.Entity().Index(), e1.Index())
	}

	// Empty the matched archetype so it is torn down, then build a
	// velocity-only archetype that reuses the freed id.
	if err := ecs.Remove[Position](w, e1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		e := w.Spawn()
		if err := ecs.Insert(w, e, Velocity{DX: float64(i)}); err != nil {
			t.Fatal(err)
		}
	}

	for it.Next() {
		t.Errorf("yielded entity %d from a non-matching archetype", it.Entity().Index())
	}
}

// TestIterationSurvivesMigration mutates entity shapes while a query is mid
// iteration. Accessors re-resolve through the directory, so writes land on
// the entity's new location.
func TestIterationSurvivesMigration(t *testing.T) {
	w := ecs.NewWorld()
	var es []ecs.EntityID
	for i := 0; i < 3; i++ {
		e := w.Spawn()
		if err := ecs.Insert(w, e, Position{X: float64(i)}); err != nil {
			t.Fatal(err)
		}
		es = append(es, e)
	}
	pos := mustID[Position](t, w)

	q, err := w.NewQuery(ecs.With(pos), ecs.ComponentAccess{Component: pos, Access: ecs.Write})
	if err != nil {
		t.Fatal(err)
	}

	it := q.Iter()
	if !it.Next() {
		t.Fatal("query matched nothing")
	}
	target := it.Entity()

	// Migrate the current entity to a different archetype, then write through
	// the live accessor.
	if err := ecs.Insert(w, target, Velocity{DX: 1}); err != nil {
		t.Fatal(err)
	}
	ecs.WriteComponent[Position](it).X = 99

	if p, ok := ecs.Get[Position](w, target); !ok || p.X != 99 {
		t.Errorf("write after migration lost: %+v ok=%v", p, ok)
	}
}
