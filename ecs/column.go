// Package ecs implements an archetype-based, columnar entity-component
// storage engine driven by depth-first event dispatch. Entities sharing an
// identical component set live in one archetype; each component is stored in
// a type-erased column for cache-friendly iteration.
package ecs

import (
	"math"
	"reflect"
	"unsafe"
)

// zstSlot backs the pointer handed out for zero-sized elements, which own no
// storage of their own.
var zstSlot struct{}

// column is a heap-owned, layout-driven growable array holding the values of
// one component across every row of an archetype. The element type is erased
// from the API; callers move raw slots around and the column knows only the
// element layout and how to destroy an element.
//
// The backing array is allocated through reflect with the element's real
// type so the garbage collector still sees any pointers inside component
// values.
type column struct {
	typ      reflect.Type
	elemSize uintptr
	len      int
	cap      int
	buf      reflect.Value // slice of typ rooting the allocation
	data     unsafe.Pointer
	drop     func(unsafe.Pointer)
}

// newColumn builds an empty column for the given component layout. Zero-sized
// elements perform no allocation and track only a length.
func newColumn(info *ComponentInfo) column {
	c := column{
		typ:      info.typ,
		elemSize: info.size,
		drop:     info.drop,
	}
	if c.elemSize == 0 {
		c.cap = math.MaxInt
	}
	return c
}

// reserve guarantees capacity for additional more elements. Growth doubles
// the current capacity. Allocation failure is fatal and aborts the process.
func (c *column) reserve(additional int) {
	if additional <= c.cap-c.len {
		return
	}
	required := c.len + additional
	newCap := c.cap * 2
	if newCap < required {
		newCap = required
	}
	buf := reflect.MakeSlice(reflect.SliceOf(c.typ), newCap, newCap)
	if c.len > 0 {
		reflect.Copy(buf, c.buf)
	}
	c.buf = buf
	c.data = buf.UnsafePointer()
	c.cap = newCap
}

// push reserves one slot at the end and returns a write-only pointer to it.
// The caller must initialize the slot before anything reads it.
func (c *column) push() unsafe.Pointer {
	if c.elemSize == 0 {
		c.len++
		return unsafe.Pointer(&zstSlot)
	}
	c.reserve(1)
	slot := unsafe.Add(c.data, uintptr(c.len)*c.elemSize)
	c.len++
	return slot
}

// get returns a pointer to the element at row.
func (c *column) get(row int) unsafe.Pointer {
	if c.elemSize == 0 {
		return unsafe.Pointer(&zstSlot)
	}
	return unsafe.Add(c.data, uintptr(row)*c.elemSize)
}

// swapRemove destroys the element at row, moves the last element into its
// place, and shrinks the length by one. Any external reference to the prior
// last row must be updated to row by the caller.
func (c *column) swapRemove(row int) {
	if c.drop != nil {
		c.drop(c.get(row))
	}
	c.swapRemoveNoDrop(row)
}

// swapRemoveNoDrop compacts the column like swapRemove but leaves the element
// at row undestroyed. Used when the element's bytes have already been moved
// elsewhere. The vacated last slot is zeroed so a stale copy cannot pin heap
// objects reachable through pointer fields.
func (c *column) swapRemoveNoDrop(row int) {
	last := c.len - 1
	c.len = last
	if c.elemSize == 0 {
		return
	}
	if row != last {
		// Typed move so pointer fields keep their GC write barriers.
		c.buf.Index(row).Set(c.buf.Index(last))
	}
	c.buf.Index(last).SetZero()
}

// transferElem copies the element at row into a fresh slot appended to dst
// without invoking the destructor, then compacts the source via swap-remove
// without destruction. Only archetype migration uses this: ownership of the
// value moves from one column to the other and it is destroyed exactly once,
// by whoever holds it last.
func (c *column) transferElem(dst *column, row int) {
	dst.push()
	if c.elemSize != 0 {
		dst.buf.Index(dst.len - 1).Set(c.buf.Index(row))
	}
	c.swapRemoveNoDrop(row)
}

// release destroys every present element and drops the backing allocation.
// The length is zeroed before any destructor runs so a destructor that
// panics cannot cause double-destruction of the remaining elements.
func (c *column) release() {
	n := c.len
	c.len = 0
	if c.drop != nil {
		for i := 0; i < n; i++ {
			var p unsafe.Pointer
			if c.elemSize == 0 {
				p = unsafe.Pointer(&zstSlot)
			} else {
				p = unsafe.Add(c.data, uintptr(i)*c.elemSize)
			}
			c.drop(p)
		}
	}
	c.buf = reflect.Value{}
	c.data = nil
	if c.elemSize != 0 {
		c.cap = 0
	}
}
