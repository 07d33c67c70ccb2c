// Package protocol owns the binary wire primitives shared by every frame.
//
// Ownership boundary:
// - frame type bytes
// - little-endian scalar readers/writers
// - framing error taxonomy
//
// Varint encoding lives in protocol/varint; control-channel JSON lives in
// protocol/session.
package protocol
