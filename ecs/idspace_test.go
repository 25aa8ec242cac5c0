package ecs

import (
	"math"
	"reflect"
	"testing"
)

func TestSystemIDSpaceExhaustion(t *testing.T) {
	e := newEventEngine(nil)
	eid := e.eventID(reflect.TypeOf((*struct{ N int })(nil)).Elem())
	e.nextSystem = math.MaxUint32
	defer func() {
		if recover() == nil {
			t.Error("registration at the id-space limit did not panic")
		}
	}()
	e.addSystem(eid, "overflow", Footprint{}, func(*World, any) {})
}
