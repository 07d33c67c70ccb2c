package relay

import (
	"errors"
	"time"

	"github.com/danmuck/xrsync/internal/pose"
	"github.com/danmuck/xrsync/internal/protocol/session"
)

var (
	ErrInvalidFrameInterval = errors.New("relay: frame interval must be positive")
	ErrInvalidQueueSize     = errors.New("relay: send queue size must be positive")
)

type Config struct {
	// FrameInterval is how often buffered uploads are broadcast.
	FrameInterval time.Duration
	WriteTimeout  time.Duration
	// SendQueue bounds each peer's outbound queue; a peer that falls this
	// far behind is dropped.
	SendQueue int
	// ProtocolVersion is announced in handshake replies.
	ProtocolVersion int
	// Calibrations seeds per-peer calibration; unlisted peers get identity.
	Calibrations map[uint16]pose.Transform
}

func DefaultConfig() Config {
	return Config{
		FrameInterval:   20 * time.Millisecond,
		WriteTimeout:    5 * time.Second,
		SendQueue:       256,
		ProtocolVersion: session.ProtocolVersion,
	}
}

func (c Config) Validate() error {
	if c.FrameInterval <= 0 {
		return ErrInvalidFrameInterval
	}
	if c.SendQueue <= 0 {
		return ErrInvalidQueueSize
	}
	return nil
}

func (c Config) calibration(peer uint16) pose.Transform {
	if t, ok := c.Calibrations[peer]; ok {
		return t
	}
	return pose.IdentityTransform()
}
