package protocol

import (
	"encoding/binary"
	"math"
)

func need(b []byte, off, n int) error {
	if off < 0 || n < 0 || len(b)-off < n {
		return ErrTruncated
	}
	return nil
}

func ReadInt32(b []byte, off int) (int32, error) {
	if err := need(b, off, SizeInt32); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[off:])), nil
}

func ReadUint32(b []byte, off int) (uint32, error) {
	if err := need(b, off, SizeUint32); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[off:]), nil
}

func ReadFloat32(b []byte, off int) (float32, error) {
	if err := need(b, off, SizeFloat32); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:])), nil
}

func ReadBool(b []byte, off int) (bool, error) {
	if err := need(b, off, SizeBool); err != nil {
		return false, err
	}
	return b[off] != 0, nil
}

func PutInt32(b []byte, off int, v int32) error {
	if err := need(b, off, SizeInt32); err != nil {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[off:], uint32(v))
	return nil
}

func PutUint32(b []byte, off int, v uint32) error {
	if err := need(b, off, SizeUint32); err != nil {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[off:], v)
	return nil
}

func PutFloat32(b []byte, off int, v float32) error {
	if err := need(b, off, SizeFloat32); err != nil {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
	return nil
}

func PutBool(b []byte, off int, v bool) error {
	if err := need(b, off, SizeBool); err != nil {
		return ErrShortBuffer
	}
	if v {
		b[off] = 1
	} else {
		b[off] = 0
	}
	return nil
}

func AppendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func AppendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func AppendFloat32(b []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(b, math.Float32bits(v))
}
