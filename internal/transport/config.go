package transport

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Jitter spreads each delay by ±50%. Off by default so the schedule is
	// exactly InitialDelay·Multiplier^n capped at MaxDelay.
	Jitter bool
}

// NewBackOff returns a reset exponential schedule that never gives up.
func (c BackoffConfig) NewBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxDelay,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	if c.Jitter {
		b.RandomizationFactor = 0.5
	}
	b.Reset()
	return b
}

// Config defines connection reliability settings.
type Config struct {
	// ConnectTimeout bounds one dial plus websocket handshake.
	ConnectTimeout time.Duration
	// KeepaliveInterval is the idle time after the last successful send
	// before a keepalive is written.
	KeepaliveInterval time.Duration
	Backoff           BackoffConfig
	TLS               TLSConfig
	// KeepalivePayload is sent as a text message.
	KeepalivePayload []byte
	Header           http.Header
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 200 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
	}
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    5 * time.Second,
		KeepaliveInterval: time.Second,
		Backoff:           DefaultBackoff(),
		KeepalivePayload:  []byte(`{"action":"keepalive"}`),
	}
}
