package ecs

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"go.uber.org/zap"

	"github.com/veldtlabs/veldt/bitset"
)

// EventID identifies an event type.
type EventID uint32

// SystemID identifies a registered handler together with its declared
// footprint.
type SystemID uint32

var (
	// ErrUnknownSystem is returned when removing a system id that is not
	// registered.
	ErrUnknownSystem = errors.New("ecs: unknown system id")
	// ErrConflictingAccess is returned when a declaration names the same
	// component more than once with at least one write, or both reads and
	// writes it.
	ErrConflictingAccess = errors.New("ecs: conflicting access declaration")
)

// Footprint declares the components a system reads and writes and the events
// it may send. The component sets feed the aliasing check run before the
// system executes; the event set is declarative only and never drives
// scheduling.
type Footprint struct {
	Reads  []ComponentID
	Writes []ComponentID
	Sends  []EventID
}

// system is one registered handler. The handler receives the event value
// type-asserted by the generic wrapper installed in AddSystem.
type system struct {
	id      SystemID
	event   EventID
	name    string
	fn      func(*World, any)
	reads   bitset.Set[ComponentID]
	writes  bitset.Set[ComponentID]
	removed bool
}

// queuedEvent is one pending event on the dispatch stack.
type queuedEvent struct {
	id    EventID
	value any
}

// dispatchFrame tracks one event instance currently being delivered. A
// handler can halt further propagation of exactly that instance.
type dispatchFrame struct {
	halted bool
}

// eventEngine drives depth-first event dispatch. Pending events live on an
// explicit stack; Send pushes and immediately drains everything above its
// entry mark, so a handler's own emitted events fully resolve before the
// handler's caller proceeds. Everything is single-threaded: instead of
// locking, each system's footprint is checked against every currently-active
// system before it runs.
type eventEngine struct {
	byType     map[reflect.Type]EventID
	types      []reflect.Type
	subs       [][]*system // indexed by EventID, registration order
	systems    map[SystemID]*system
	nextSystem SystemID
	queue      []queuedEvent
	frames     []*dispatchFrame
	active     []*system
	log        *zap.Logger
}

func newEventEngine(log *zap.Logger) eventEngine {
	return eventEngine{
		byType:  make(map[reflect.Type]EventID, 16),
		systems: make(map[SystemID]*system, 16),
		log:     log,
	}
}

// eventID assigns (or returns) the dense id for an event type. Id-space
// exhaustion is fatal and reported here.
func (e *eventEngine) eventID(t reflect.Type) EventID {
	if id, ok := e.byType[t]; ok {
		return id
	}
	if len(e.types) >= math.MaxUint32 {
		panic(fmt.Sprintf("ecs: event id space exhausted registering %s", t))
	}
	id := EventID(len(e.types))
	e.byType[t] = id
	e.types = append(e.types, t)
	e.subs = append(e.subs, nil)
	return id
}

// addSystem registers a handler for an event id with its declared footprint.
func (e *eventEngine) addSystem(eventID EventID, name string, fp Footprint, fn func(*World, any)) (SystemID, error) {
	var reads, writes bitset.Set[ComponentID]
	for _, c := range fp.Writes {
		if writes.Contains(c) {
			return 0, fmt.Errorf("system %s writes component %d twice: %w", name, c, ErrConflictingAccess)
		}
		writes.Insert(c)
	}
	for _, c := range fp.Reads {
		if writes.Contains(c) {
			return 0, fmt.Errorf("system %s both reads and writes component %d: %w", name, c, ErrConflictingAccess)
		}
		reads.Insert(c)
	}

	if e.nextSystem == math.MaxUint32 {
		panic(fmt.Sprintf("ecs: system id space exhausted registering %s", name))
	}
	id := e.nextSystem
	e.nextSystem++
	s := &system{
		id:     id,
		event:  eventID,
		name:   name,
		fn:     fn,
		reads:  reads,
		writes: writes,
	}
	e.systems[id] = s
	e.subs[eventID] = append(e.subs[eventID], s)
	if e.log != nil {
		e.log.Debug("system added", zap.Uint32("system", uint32(id)), zap.String("name", name))
	}
	return id, nil
}

// removeSystem detaches a handler. The removal is immediate: even an
// in-flight dispatch holding a snapshot of the subscriber list skips the
// system once its removed flag is set.
func (e *eventEngine) removeSystem(id SystemID) error {
	s, ok := e.systems[id]
	if !ok {
		return fmt.Errorf("remove system %d: %w", id, ErrUnknownSystem)
	}
	s.removed = true
	delete(e.systems, id)
	subs := e.subs[s.event]
	for i, sub := range subs {
		if sub == s {
			e.subs[s.event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if e.log != nil {
		e.log.Debug("system removed", zap.Uint32("system", uint32(id)), zap.String("name", s.name))
	}
	return nil
}

// send pushes an event and drains the stack back down to its entry depth.
// Nested sends inside handlers recurse through here, which yields the
// depth-first LIFO order: the most recently pushed event is always delivered
// next, and its entire cascade completes before control returns.
func (e *eventEngine) send(w *World, ev any) {
	t := reflect.TypeOf(ev)
	id, ok := e.byType[t]
	if !ok {
		// No system ever subscribed to this type; nothing can observe it.
		return
	}
	mark := len(e.queue)
	e.queue = append(e.queue, queuedEvent{id: id, value: ev})
	e.drain(w, mark)
}

func (e *eventEngine) drain(w *World, mark int) {
	for len(e.queue) > mark {
		top := e.queue[len(e.queue)-1]
		e.queue = e.queue[:len(e.queue)-1]

		frame := &dispatchFrame{}
		e.frames = append(e.frames, frame)

		// Snapshot so handlers adding/removing systems for this event do not
		// perturb the in-flight delivery.
		subs := append([]*system(nil), e.subs[top.id]...)
		for _, s := range subs {
			if frame.halted {
				break
			}
			if s.removed {
				continue
			}
			e.checkConflicts(s)
			e.active = append(e.active, s)
			s.fn(w, top.value)
			e.active = e.active[:len(e.active)-1]
		}

		e.frames = e.frames[:len(e.frames)-1]
	}
}

// checkConflicts compares s's footprint against every currently-active
// (on-stack, not yet returned) system. A write/write or read/write overlap
// on the same component is a programming error and panics immediately.
func (e *eventEngine) checkConflicts(s *system) {
	for _, a := range e.active {
		if !s.writes.IsDisjoint(&a.writes) || !s.writes.IsDisjoint(&a.reads) || !s.reads.IsDisjoint(&a.writes) {
			panic(fmt.Sprintf(
				"ecs: access conflict: system %q (id %d) overlaps active system %q (id %d) on a written component",
				s.name, s.id, a.name, a.id,
			))
		}
	}
}

// halt stops propagation of the event instance whose handlers are currently
// being delivered. Later systems subscribed to that instance are skipped;
// other pending events are unaffected.
func (e *eventEngine) halt() {
	if n := len(e.frames); n > 0 {
		e.frames[n-1].halted = true
	}
}
