package bitset

import "testing"

type id = uint32

func TestInsertContainsRemove(t *testing.T) {
	var s Set[id]
	if s.Contains(0) {
		t.Error("empty set should not contain 0")
	}
	s.Insert(3)
	s.Insert(64)
	s.Insert(200)
	for _, v := range []id{3, 64, 200} {
		if !s.Contains(v) {
			t.Errorf("expected set to contain %d", v)
		}
	}
	if s.Contains(4) || s.Contains(65) {
		t.Error("set contains values that were never inserted")
	}
	s.Remove(64)
	if s.Contains(64) {
		t.Error("64 still present after Remove")
	}
	// Removing an absent or out-of-range id is a no-op.
	s.Remove(64)
	s.Remove(100000)
}

func TestLenAndIsEmpty(t *testing.T) {
	var s Set[id]
	if !s.IsEmpty() || s.Len() != 0 {
		t.Error("zero value should be empty")
	}
	s.Insert(7)
	s.Insert(7)
	s.Insert(130)
	if s.IsEmpty() {
		t.Error("set with elements reported empty")
	}
	if got := s.Len(); got != 2 {
		t.Errorf("expected Len 2, got %d", got)
	}
	s.Remove(7)
	s.Remove(130)
	if !s.IsEmpty() {
		t.Error("set should be empty after removing all elements")
	}
}

func TestUnionWithGrows(t *testing.T) {
	var a, b Set[id]
	a.Insert(1)
	b.Insert(300)
	b.Insert(2)
	a.UnionWith(&b)
	for _, v := range []id{1, 2, 300} {
		if !a.Contains(v) {
			t.Errorf("union missing %d", v)
		}
	}
	if !b.Contains(300) || b.Contains(1) {
		t.Error("UnionWith modified its argument")
	}
}

func TestIsDisjoint(t *testing.T) {
	var a, b Set[id]
	a.Insert(5)
	b.Insert(500)
	if !a.IsDisjoint(&b) {
		t.Error("sets with no common element reported overlapping")
	}
	b.Insert(5)
	if a.IsDisjoint(&b) {
		t.Error("sets sharing 5 reported disjoint")
	}
	var empty Set[id]
	if !a.IsDisjoint(&empty) || !empty.IsDisjoint(&a) {
		t.Error("empty set must be disjoint with everything")
	}
}

func TestEachAscending(t *testing.T) {
	var s Set[id]
	want := []id{0, 9, 63, 64, 65, 1000}
	for _, v := range want {
		s.Insert(v)
	}
	var got []id
	s.Each(func(v id) bool {
		got = append(got, v)
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestEachEarlyStop(t *testing.T) {
	var s Set[id]
	s.Insert(1)
	s.Insert(2)
	s.Insert(3)
	n := 0
	s.Each(func(id) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("expected iteration to stop after 2 elements, saw %d", n)
	}
}

func TestCloneIndependence(t *testing.T) {
	var s Set[id]
	s.Insert(10)
	c := s.Clone()
	c.Insert(11)
	s.Remove(10)
	if !c.Contains(10) || !c.Contains(11) {
		t.Error("clone lost elements")
	}
	if s.Contains(11) {
		t.Error("mutating the clone affected the original")
	}
}
