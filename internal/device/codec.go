package device

import (
	"github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/protocol/varint"
)

// Block layout:
//
//	[varint contentLength][varint deviceId][6 × (varint n, n elements)]
//
// contentLength counts everything after itself.

func (s *State) arrayLen(k Kind) int {
	switch k {
	case KindQuaternion:
		return len(s.Quaternions)
	case KindVector3:
		return len(s.Vector3s)
	case KindVector2:
		return len(s.Vector2s)
	case KindFloat:
		return len(s.Floats)
	case KindBool:
		return len(s.Bools)
	case KindUint:
		return len(s.Uints)
	default:
		return 0
	}
}

// CalculateSerializationSize returns the exact byte count of this device's
// block. contentOnly excludes the leading length prefix.
func (s *State) CalculateSerializationSize(contentOnly bool) int {
	content := varint.Size(s.ID)
	for _, k := range Kinds {
		n := s.arrayLen(k)
		content += varint.Size(uint32(n)) + n*k.ElemSize()
	}
	if contentOnly {
		return content
	}
	return varint.Size(uint32(content)) + content
}

type blockWriter struct {
	buf []byte
	pos int
	err error
}

func (w *blockWriter) varint(v uint32) {
	if w.err != nil {
		return
	}
	n, err := varint.Put(w.buf, w.pos, v)
	w.pos += n
	w.err = err
}

func (w *blockWriter) f32(v float32) {
	if w.err != nil {
		return
	}
	w.err = protocol.PutFloat32(w.buf, w.pos, v)
	w.pos += protocol.SizeFloat32
}

func (w *blockWriter) u32(v uint32) {
	if w.err != nil {
		return
	}
	w.err = protocol.PutUint32(w.buf, w.pos, v)
	w.pos += protocol.SizeUint32
}

func (w *blockWriter) boolean(v bool) {
	if w.err != nil {
		return
	}
	w.err = protocol.PutBool(w.buf, w.pos, v)
	w.pos += protocol.SizeBool
}

func (w *blockWriter) vec3(v Vec3) {
	w.f32(v.X)
	w.f32(v.Y)
	w.f32(v.Z)
}

// SerializeData writes the device block at dst[off:] and returns the bytes
// written. The written content is cross-checked against the computed size;
// a mismatch is logged and counted but the block is still returned.
func (s *State) SerializeData(dst []byte, off int) (int, error) {
	content := s.CalculateSerializationSize(true)
	total := varint.Size(uint32(content)) + content
	if off < 0 || len(dst)-off < total {
		return 0, protocol.ErrShortBuffer
	}

	w := &blockWriter{buf: dst, pos: off}
	w.varint(uint32(content))
	start := w.pos
	w.varint(s.ID)

	w.varint(uint32(len(s.Quaternions)))
	for _, q := range s.Quaternions {
		w.vec3(q)
	}
	w.varint(uint32(len(s.Vector3s)))
	for _, v := range s.Vector3s {
		w.vec3(v)
	}
	w.varint(uint32(len(s.Vector2s)))
	for _, v := range s.Vector2s {
		w.f32(v.X)
		w.f32(v.Y)
	}
	w.varint(uint32(len(s.Floats)))
	for _, f := range s.Floats {
		w.f32(f)
	}
	w.varint(uint32(len(s.Bools)))
	for _, b := range s.Bools {
		w.boolean(b)
	}
	w.varint(uint32(len(s.Uints)))
	for _, u := range s.Uints {
		w.u32(u)
	}
	if w.err != nil {
		return 0, w.err
	}

	if written := w.pos - start; written != content {
		logging.Warnf("device.State.SerializeData size mismatch device=%d declared=%d written=%d", s.ID, content, written)
		observability.RecordSerializationMismatch()
	}
	return w.pos - off, nil
}

// AppendData appends the device block to dst.
func (s *State) AppendData(dst []byte) ([]byte, error) {
	off := len(dst)
	total := s.CalculateSerializationSize(false)
	dst = append(dst, make([]byte, total)...)
	n, err := s.SerializeData(dst, off)
	if err != nil {
		return dst[:off], err
	}
	return dst[:off+n], nil
}

// BlockHeader locates one device block inside a frame.
type BlockHeader struct {
	ContentLen int
	DeviceID   uint32
	// BodyOffset is the absolute offset of the first sub-array.
	BodyOffset int
	// Total is the byte length of the whole block, prefix included.
	Total int
}

// ReadBlockHeader reads the length prefix and device id of the block at
// src[off:], failing when the declared content is not fully present.
func ReadBlockHeader(src []byte, off int) (BlockHeader, error) {
	clen, n, err := varint.Read(src, off)
	if err != nil {
		return BlockHeader{}, err
	}
	start := off + n
	if uint64(clen) > uint64(len(src)-start) {
		return BlockHeader{}, protocol.ErrTruncated
	}
	end := start + int(clen)
	id, m, err := varint.Read(src[:end], start)
	if err != nil {
		return BlockHeader{}, err
	}
	return BlockHeader{
		ContentLen: int(clen),
		DeviceID:   id,
		BodyOffset: start + m,
		Total:      end - off,
	}, nil
}

// DeSerializeData overwrites the state from the block at src[off:] and
// returns the bytes consumed, always the whole declared block.
//
// A sub-array whose length differs from the local schema is skipped, as is
// content past the sixth array. Content that ends early leaves the remaining
// arrays untouched. Values are only written once the whole block has been
// walked without a framing error.
func (s *State) DeSerializeData(src []byte, off int) (int, error) {
	hdr, err := ReadBlockHeader(src, off)
	if err != nil {
		return 0, err
	}
	end := off + hdr.Total
	if !s.HasData {
		return hdr.Total, nil
	}
	if hdr.DeviceID != s.ID {
		logging.Debugf("device.State.DeSerializeData id mismatch local=%d wire=%d", s.ID, hdr.DeviceID)
		return hdr.Total, nil
	}

	block := src[:end]
	var offsets [KindCount]int
	var matched [KindCount]bool
	pos := hdr.BodyOffset
	for _, k := range Kinds {
		if pos == end {
			break
		}
		count, n, err := varint.Read(block, pos)
		if err != nil {
			return 0, err
		}
		pos += n
		size := uint64(count) * uint64(k.ElemSize())
		if size > uint64(end-pos) {
			return 0, protocol.ErrTruncated
		}
		if int(count) == s.schema.Len(k) {
			matched[k] = true
			offsets[k] = pos
		} else {
			logging.Debugf(
				"device.State.DeSerializeData skip device=%d kind=%s wire=%d local=%d",
				s.ID, k, count, s.schema.Len(k),
			)
		}
		pos += int(size)
	}

	for _, k := range Kinds {
		if matched[k] {
			s.decodeArray(k, block, offsets[k])
		}
	}
	return hdr.Total, nil
}

// decodeArray reads a bounds-checked array; errors cannot occur here.
func (s *State) decodeArray(k Kind, b []byte, pos int) {
	f32 := func() float32 {
		v, _ := protocol.ReadFloat32(b, pos)
		pos += protocol.SizeFloat32
		return v
	}
	switch k {
	case KindQuaternion:
		for i := range s.Quaternions {
			s.Quaternions[i] = Vec3{X: f32(), Y: f32(), Z: f32()}
		}
	case KindVector3:
		for i := range s.Vector3s {
			s.Vector3s[i] = Vec3{X: f32(), Y: f32(), Z: f32()}
		}
	case KindVector2:
		for i := range s.Vector2s {
			s.Vector2s[i] = Vec2{X: f32(), Y: f32()}
		}
	case KindFloat:
		for i := range s.Floats {
			s.Floats[i] = f32()
		}
	case KindBool:
		for i := range s.Bools {
			s.Bools[i], _ = protocol.ReadBool(b, pos)
			pos += protocol.SizeBool
		}
	case KindUint:
		for i := range s.Uints {
			s.Uints[i], _ = protocol.ReadUint32(b, pos)
			pos += protocol.SizeUint32
		}
	}
}

// SkipBlock returns the byte length of the block at src[off:] without
// decoding it.
func SkipBlock(src []byte, off int) (int, error) {
	hdr, err := ReadBlockHeader(src, off)
	if err != nil {
		return 0, err
	}
	return hdr.Total, nil
}
