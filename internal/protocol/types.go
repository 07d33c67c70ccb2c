package protocol

import "fmt"

// FrameType is the leading byte of every binary message.
type FrameType byte

const (
	FrameState  FrameType = 1
	FrameHaptic FrameType = 2
)

func (t FrameType) String() string {
	switch t {
	case FrameState:
		return "state"
	case FrameHaptic:
		return "haptic"
	default:
		return fmt.Sprintf("frame(%d)", byte(t))
	}
}

// Scalar widths on the wire.
const (
	SizeInt32   = 4
	SizeUint32  = 4
	SizeFloat32 = 4
	SizeBool    = 1
)

// PeekFrameType returns the sub-protocol selector of a binary message.
func PeekFrameType(b []byte) (FrameType, error) {
	if len(b) == 0 {
		return 0, ErrEmptyFrame
	}
	return FrameType(b[0]), nil
}
