package protocol

import "errors"

// Framing errors abort parsing of the current message only.
var (
	ErrTruncated        = errors.New("protocol: truncated data")
	ErrBadVarint        = errors.New("protocol: malformed varint")
	ErrShortBuffer      = errors.New("protocol: destination buffer too small")
	ErrInvalidLength    = errors.New("protocol: invalid length")
	ErrUnknownFrameType = errors.New("protocol: unknown frame type")
	ErrEmptyFrame       = errors.New("protocol: empty frame")
)
