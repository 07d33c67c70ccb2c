package session

import (
	"fmt"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/protocol/varint"
)

// BlockVisitor receives one device block of a state frame. block spans the
// whole block, length prefix included, so device.State.DeSerializeData can
// read it at offset 0.
type BlockVisitor func(clientID int32, deviceID uint32, block []byte) error

// AppendUploadHeader starts a client upload frame:
// [type=1][i32 selfPeerId][varint deviceCount].
func AppendUploadHeader(dst []byte, selfPeerID int32, deviceCount int) []byte {
	dst = append(dst, byte(protocol.FrameState))
	dst = protocol.AppendInt32(dst, selfPeerID)
	return varint.Append(dst, uint32(deviceCount))
}

// ParseUpload walks a client upload frame.
func ParseUpload(frame []byte, visit BlockVisitor) (int32, error) {
	if err := expectType(frame, protocol.FrameState); err != nil {
		return 0, err
	}
	peer, err := protocol.ReadInt32(frame, 1)
	if err != nil {
		return 0, err
	}
	end, err := walkClient(frame, 1+protocol.SizeInt32, peer, visit)
	if err != nil {
		return peer, err
	}
	if end != len(frame) {
		return peer, fmt.Errorf("%w: %d trailing bytes", protocol.ErrInvalidLength, len(frame)-end)
	}
	return peer, nil
}

// ClientBlocks is one client's section of a broadcast frame.
type ClientBlocks struct {
	ClientID int32
	Count    int
	// Blocks holds the concatenated device blocks.
	Blocks []byte
}

// AppendBroadcast builds [type=1][i32 clientCount] then per client
// [i32 id][varint deviceCount][blocks].
func AppendBroadcast(dst []byte, clients []ClientBlocks) []byte {
	dst = append(dst, byte(protocol.FrameState))
	dst = protocol.AppendInt32(dst, int32(len(clients)))
	for _, c := range clients {
		dst = protocol.AppendInt32(dst, c.ClientID)
		dst = varint.Append(dst, uint32(c.Count))
		dst = append(dst, c.Blocks...)
	}
	return dst
}

// ParseBroadcast walks a relay state broadcast, calling visit per device
// block. A visitor error stops the walk and is returned.
func ParseBroadcast(frame []byte, visit BlockVisitor) error {
	if err := expectType(frame, protocol.FrameState); err != nil {
		return err
	}
	count, err := protocol.ReadInt32(frame, 1)
	if err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("%w: client count %d", protocol.ErrInvalidLength, count)
	}
	off := 1 + protocol.SizeInt32
	for i := int32(0); i < count; i++ {
		id, err := protocol.ReadInt32(frame, off)
		if err != nil {
			return err
		}
		off, err = walkClient(frame, off+protocol.SizeInt32, id, visit)
		if err != nil {
			return err
		}
	}
	return nil
}

func walkClient(frame []byte, off int, clientID int32, visit BlockVisitor) (int, error) {
	n, m, err := varint.Read(frame, off)
	if err != nil {
		return 0, err
	}
	off += m
	for j := uint32(0); j < n; j++ {
		hdr, err := device.ReadBlockHeader(frame, off)
		if err != nil {
			return 0, err
		}
		if visit != nil {
			if err := visit(clientID, hdr.DeviceID, frame[off:off+hdr.Total]); err != nil {
				return 0, err
			}
		}
		off += hdr.Total
	}
	return off, nil
}

func expectType(frame []byte, want protocol.FrameType) error {
	got, err := protocol.PeekFrameType(frame)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: got %s want %s", protocol.ErrUnknownFrameType, got, want)
	}
	return nil
}
