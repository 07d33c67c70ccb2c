package device

import "fmt"

// Kind selects one of the six typed slot arrays of a device.
type Kind uint8

const (
	KindQuaternion Kind = iota
	KindVector3
	KindVector2
	KindFloat
	KindBool
	KindUint
)

// KindCount is the number of typed arrays, in wire order.
const KindCount = 6

// Kinds lists every kind in wire order.
var Kinds = [KindCount]Kind{KindQuaternion, KindVector3, KindVector2, KindFloat, KindBool, KindUint}

// ElemSize is the byte width of one element on the wire.
func (k Kind) ElemSize() int {
	switch k {
	case KindQuaternion, KindVector3:
		return 12
	case KindVector2:
		return 8
	case KindFloat, KindUint:
		return 4
	case KindBool:
		return 1
	default:
		return 0
	}
}

func (k Kind) String() string {
	switch k {
	case KindQuaternion:
		return "quaternion"
	case KindVector3:
		return "vector3"
	case KindVector2:
		return "vector2"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) Valid() bool {
	return k < KindCount
}

// Characteristics is the bitmask a runtime reports for a device.
type Characteristics uint32

const (
	CharHeadMounted       Characteristics = 1 << 0
	CharCamera            Characteristics = 1 << 1
	CharHeldInHand        Characteristics = 1 << 2
	CharHandTracking      Characteristics = 1 << 3
	CharEyeTracking       Characteristics = 1 << 4
	CharTrackedDevice     Characteristics = 1 << 5
	CharController        Characteristics = 1 << 6
	CharTrackingReference Characteristics = 1 << 7
	CharLeft              Characteristics = 1 << 8
	CharRight             Characteristics = 1 << 9
	CharSimulated6DOF     Characteristics = 1 << 10
)

func (c Characteristics) Has(flag Characteristics) bool {
	return c&flag == flag
}
