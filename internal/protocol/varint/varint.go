// Package varint implements the 7-bit continuation integer used by every
// binary frame: little-endian groups, high bit set while more bytes follow.
package varint

import (
	"encoding/binary"
	"math"

	"github.com/danmuck/xrsync/internal/protocol"
)

// MaxLen is the longest encoding of a uint32.
const MaxLen = 5

// Size returns the encoded length of v.
func Size(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func Append(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// Put writes v at dst[off:] and returns the number of bytes written.
func Put(dst []byte, off int, v uint32) (int, error) {
	if off < 0 || len(dst)-off < Size(v) {
		return 0, protocol.ErrShortBuffer
	}
	return binary.PutUvarint(dst[off:], uint64(v)), nil
}

// Read decodes one value at src[off:].
func Read(src []byte, off int) (uint32, int, error) {
	if off < 0 || off >= len(src) {
		return 0, 0, protocol.ErrTruncated
	}
	window := src[off:]
	if len(window) > MaxLen {
		window = window[:MaxLen]
	}
	v, n := binary.Uvarint(window)
	switch {
	case n == 0:
		if len(window) == MaxLen {
			return 0, 0, protocol.ErrBadVarint
		}
		return 0, 0, protocol.ErrTruncated
	case n < 0:
		return 0, 0, protocol.ErrBadVarint
	case v > math.MaxUint32:
		return 0, 0, protocol.ErrBadVarint
	}
	return uint32(v), n, nil
}
