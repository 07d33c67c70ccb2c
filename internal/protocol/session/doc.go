// Package session owns the relay session wire: JSON control messages keyed
// by action and the binary state and haptic frames.
//
// Ownership boundary:
// - control message shapes, builders and the protocol version constant
// - type-1 upload/broadcast frame walking
// - type-2 haptic records
//
// Device blocks inside frames are encoded by internal/device; this package
// only locates them.
package session
