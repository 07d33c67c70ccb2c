package device

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// FeatureReader reads the current value of a named feature.
type FeatureReader interface {
	TryGetQuaternion(name string) (quat.Number, bool)
	TryGetVector3(name string) (r3.Vec, bool)
	TryGetVector2(name string) (r2.Vec, bool)
	TryGetFloat(name string) (float32, bool)
	TryGetBool(name string) (bool, bool)
	TryGetUint(name string) (uint32, bool)
}

// Source is a physical (or simulated) local device.
type Source interface {
	FeatureReader
	Name() string
	Characteristics() Characteristics
	SupportsHaptics() bool
	Usages() []Usage
	SendHapticImpulse(channel uint32, amplitude, duration float32) bool
}

// Refresh pulls every slot of the schema from r. Features the reader does not
// return keep their previous value.
func (s *State) Refresh(r FeatureReader) {
	if !s.HasData {
		return
	}
	for _, ns := range s.schema.Slots() {
		switch ns.Kind {
		case KindQuaternion:
			if q, ok := r.TryGetQuaternion(ns.Name); ok {
				s.SetRotation(ns.Index, q)
			}
		case KindVector3:
			if v, ok := r.TryGetVector3(ns.Name); ok {
				s.SetVector3(ns.Index, v)
			}
		case KindVector2:
			if v, ok := r.TryGetVector2(ns.Name); ok {
				s.SetVector2(ns.Index, v)
			}
		case KindFloat:
			if v, ok := r.TryGetFloat(ns.Name); ok {
				s.SetFloat(ns.Index, v)
			}
		case KindBool:
			if v, ok := r.TryGetBool(ns.Name); ok {
				s.SetBool(ns.Index, v)
			}
		case KindUint:
			if v, ok := r.TryGetUint(ns.Name); ok {
				s.SetUint(ns.Index, v)
			}
		}
	}
}
