package device

import (
	"github.com/danmuck/xrsync/internal/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Fallbacks returned when a feature is unavailable.
const (
	FallbackBatteryLevel float32 = 0.5
)

type Vec3 struct {
	X, Y, Z float32
}

type Vec2 struct {
	X, Y float32
}

func vec3From(v r3.Vec) Vec3 {
	return Vec3{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// State holds the current typed values of one local or remote device.
//
// Quaternions are kept as Euler radians, the same representation they have
// on the wire. Array lengths are fixed by the schema.
type State struct {
	ID     uint32
	schema Schema

	Quaternions []Vec3
	Vector3s    []Vec3
	Vector2s    []Vec2
	Floats      []float32
	Bools       []bool
	Uints       []uint32

	HasData           bool
	DeviceInfoChanged bool
}

func NewState(id uint32) *State {
	return &State{ID: id}
}

// NewStateWithSchema returns a state ready to receive data.
func NewStateWithSchema(id uint32, schema Schema) *State {
	s := NewState(id)
	s.Establish(schema)
	return s
}

func (s *State) Schema() Schema {
	return s.schema
}

// Establish assigns schema and sizes the arrays. An equal schema on a state
// that already has data is kept as-is so slot order stays stable; a
// different one means a new device instance and resets every value.
// Returns true when the arrays were reallocated.
func (s *State) Establish(schema Schema) bool {
	if s.HasData && s.schema.Equal(schema) {
		return false
	}
	s.schema = schema
	s.Quaternions = make([]Vec3, schema.Len(KindQuaternion))
	s.Vector3s = make([]Vec3, schema.Len(KindVector3))
	s.Vector2s = make([]Vec2, schema.Len(KindVector2))
	s.Floats = make([]float32, schema.Len(KindFloat))
	s.Bools = make([]bool, schema.Len(KindBool))
	s.Uints = make([]uint32, schema.Len(KindUint))
	s.HasData = true
	s.DeviceInfoChanged = true
	return true
}

// Clear drops the schema and values, e.g. when the physical device goes away.
func (s *State) Clear() {
	s.schema = Schema{}
	s.Quaternions, s.Vector3s, s.Vector2s = nil, nil, nil
	s.Floats, s.Bools, s.Uints = nil, nil, nil
	s.HasData = false
}

func (s *State) lookup(name string, kind Kind) (int, bool) {
	if !s.HasData {
		return 0, false
	}
	slot, ok := s.schema.Lookup(name)
	if !ok || slot.Kind != kind || slot.Index >= s.schema.Len(kind) {
		return 0, false
	}
	return slot.Index, true
}

// Euler returns the raw stored Euler radians of a rotation feature.
func (s *State) Euler(name string) (Vec3, bool) {
	i, ok := s.lookup(name, KindQuaternion)
	if !ok {
		return Vec3{}, false
	}
	return s.Quaternions[i], true
}

// Rotation returns a rotation feature, identity when unavailable.
func (s *State) Rotation(name string) (quat.Number, bool) {
	e, ok := s.Euler(name)
	if !ok {
		return pose.IdentityRotation(), false
	}
	return pose.FromEuler(e.R3()), true
}

func (s *State) Vector3(name string) (r3.Vec, bool) {
	i, ok := s.lookup(name, KindVector3)
	if !ok {
		return r3.Vec{}, false
	}
	return s.Vector3s[i].R3(), true
}

func (s *State) Vector2(name string) (r2.Vec, bool) {
	i, ok := s.lookup(name, KindVector2)
	if !ok {
		return r2.Vec{}, false
	}
	v := s.Vector2s[i]
	return r2.Vec{X: float64(v.X), Y: float64(v.Y)}, true
}

func (s *State) Float(name string) (float32, bool) {
	i, ok := s.lookup(name, KindFloat)
	if !ok {
		return 0, false
	}
	return s.Floats[i], true
}

func (s *State) Bool(name string) (bool, bool) {
	i, ok := s.lookup(name, KindBool)
	if !ok {
		return false, false
	}
	return s.Bools[i], true
}

func (s *State) Uint(name string) (uint32, bool) {
	i, ok := s.lookup(name, KindUint)
	if !ok {
		return 0, false
	}
	return s.Uints[i], true
}

func (s *State) DevicePosition() (r3.Vec, bool) {
	return s.Vector3(UsageDevicePosition)
}

func (s *State) DeviceRotation() (quat.Number, bool) {
	return s.Rotation(UsageDeviceRotation)
}

// BatteryLevel falls back to FallbackBatteryLevel when the device has none.
func (s *State) BatteryLevel() (float32, bool) {
	v, ok := s.Float(UsageBatteryLevel)
	if !ok {
		return FallbackBatteryLevel, false
	}
	return v, true
}

func (s *State) IsTracked() (bool, bool) {
	return s.Bool(UsageIsTracked)
}

func (s *State) TrackingState() (uint32, bool) {
	return s.Uint(UsageTrackingState)
}

// Pose returns the device's own position and rotation.
func (s *State) Pose() pose.Pose {
	pos, _ := s.DevicePosition()
	rot, _ := s.DeviceRotation()
	return pose.Pose{Position: pos, Rotation: rot}
}

// SetRotation stores q as Euler radians at slot index i.
func (s *State) SetRotation(i int, q quat.Number) {
	if i >= 0 && i < len(s.Quaternions) {
		s.Quaternions[i] = vec3From(pose.ToEuler(q))
	}
}

func (s *State) SetVector3(i int, v r3.Vec) {
	if i >= 0 && i < len(s.Vector3s) {
		s.Vector3s[i] = vec3From(v)
	}
}

func (s *State) SetVector2(i int, v r2.Vec) {
	if i >= 0 && i < len(s.Vector2s) {
		s.Vector2s[i] = Vec2{X: float32(v.X), Y: float32(v.Y)}
	}
}

func (s *State) SetFloat(i int, v float32) {
	if i >= 0 && i < len(s.Floats) {
		s.Floats[i] = v
	}
}

func (s *State) SetBool(i int, v bool) {
	if i >= 0 && i < len(s.Bools) {
		s.Bools[i] = v
	}
}

func (s *State) SetUint(i int, v uint32) {
	if i >= 0 && i < len(s.Uints) {
		s.Uints[i] = v
	}
}
