// Package bitset provides a dense set of small integer ids backed by packed
// 64-bit words. It is the foundational set representation for archetype
// shapes, query expressions, and system footprints.
package bitset

import "math/bits"

const bitsPerWord = 64

// ID constrains the id types a Set can hold. All runtime ids (components,
// events, archetypes) are dense uint32 values.
type ID interface{ ~uint32 }

// Set is a growable bit set. The zero value is an empty set ready for use.
// A Set is singly owned and not synchronized.
type Set[T ID] struct {
	words []uint64
}

// Insert adds v to the set, growing the backing storage to fit.
func (s *Set[T]) Insert(v T) {
	w := int(v / bitsPerWord)
	if w >= len(s.words) {
		s.grow(w + 1)
	}
	s.words[w] |= 1 << (v % bitsPerWord)
}

// Remove deletes v from the set. Removing an absent id is a no-op.
func (s *Set[T]) Remove(v T) {
	w := int(v / bitsPerWord)
	if w < len(s.words) {
		s.words[w] &^= 1 << (v % bitsPerWord)
	}
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool {
	w := int(v / bitsPerWord)
	return w < len(s.words) && s.words[w]&(1<<(v%bitsPerWord)) != 0
}

// UnionWith adds every element of other to s, growing as needed.
func (s *Set[T]) UnionWith(other *Set[T]) {
	if len(other.words) > len(s.words) {
		s.grow(len(other.words))
	}
	for i, w := range other.words {
		s.words[i] |= w
	}
}

// IsDisjoint reports whether s and other share no elements. The test is
// exact.
func (s *Set[T]) IsDisjoint(other *Set[T]) bool {
	n := min(len(s.words), len(other.words))
	for i := 0; i < n; i++ {
		if s.words[i]&other.words[i] != 0 {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the set contains no elements.
func (s *Set[T]) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of elements in the set.
func (s *Set[T]) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Each calls fn for every element in ascending order. Iteration stops early
// if fn returns false.
func (s *Set[T]) Each(fn func(T) bool) {
	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			if !fn(T(i*bitsPerWord + b)) {
				return
			}
			w &= w - 1
		}
	}
}

// Clone returns an independent copy of the set.
func (s *Set[T]) Clone() Set[T] {
	c := Set[T]{}
	if len(s.words) > 0 {
		c.words = make([]uint64, len(s.words))
		copy(c.words, s.words)
	}
	return c
}

// grow extends the word slice to hold at least n words. Capacity doubles so
// repeated inserts of ascending ids amortize; the set never shrinks.
func (s *Set[T]) grow(n int) {
	newCap := 2 * cap(s.words)
	if newCap < n {
		newCap = n
	}
	words := make([]uint64, n, newCap)
	copy(words, s.words)
	s.words = words[:n]
}
