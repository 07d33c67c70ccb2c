package session

import (
	"fmt"

	"github.com/danmuck/xrsync/internal/protocol"
)

// HapticRecordSize is the width of one [i32 deviceId][u32 channel]
// [f32 duration][f32 amplitude] record.
const HapticRecordSize = protocol.SizeInt32 + protocol.SizeUint32 + 2*protocol.SizeFloat32

type HapticRecord struct {
	DeviceID  int32
	Channel   uint32
	Duration  float32
	Amplitude float32
}

// ParseHaptics decodes every record of a type-2 frame. A partial trailing
// record is a framing error and nothing is returned.
func ParseHaptics(frame []byte) ([]HapticRecord, error) {
	if err := expectType(frame, protocol.FrameHaptic); err != nil {
		return nil, err
	}
	body := frame[1:]
	if len(body)%HapticRecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of haptic records", protocol.ErrTruncated, len(body))
	}
	out := make([]HapticRecord, 0, len(body)/HapticRecordSize)
	for off := 0; off < len(body); off += HapticRecordSize {
		// Lengths are checked above.
		id, _ := protocol.ReadInt32(body, off)
		ch, _ := protocol.ReadUint32(body, off+4)
		dur, _ := protocol.ReadFloat32(body, off+8)
		amp, _ := protocol.ReadFloat32(body, off+12)
		out = append(out, HapticRecord{DeviceID: id, Channel: ch, Duration: dur, Amplitude: amp})
	}
	return out, nil
}

// AppendHaptic appends records to dst, writing the frame type byte first
// when dst is empty.
func AppendHaptic(dst []byte, records ...HapticRecord) []byte {
	if len(dst) == 0 {
		dst = append(dst, byte(protocol.FrameHaptic))
	}
	for _, r := range records {
		dst = protocol.AppendInt32(dst, r.DeviceID)
		dst = protocol.AppendUint32(dst, r.Channel)
		dst = protocol.AppendFloat32(dst, r.Duration)
		dst = protocol.AppendFloat32(dst, r.Amplitude)
	}
	return dst
}
