package config

import (
	"strings"

	"github.com/danmuck/xrsync/internal/auth"
	"github.com/danmuck/xrsync/internal/device/sim"
	"github.com/danmuck/xrsync/internal/syncer"
	"github.com/danmuck/xrsync/internal/transport"
	"gonum.org/v1/gonum/spatial/r3"
)

// SyncerConfig overlays the file settings on syncer.DefaultConfig. The
// config is expected to have passed ValidateClientConfig.
func (c ClientConfig) SyncerConfig() syncer.Config {
	cfg := syncer.DefaultConfig()
	cfg.RelayURL = strings.TrimSpace(c.RelayURL)
	cfg.IdentityNamespace = strings.TrimSpace(c.IdentityNamespace)
	if d, _ := parseDuration(c.TickInterval); d > 0 {
		cfg.TickInterval = d
	}

	t := c.Transport
	if d, _ := parseDuration(t.ConnectTimeout); d > 0 {
		cfg.Transport.ConnectTimeout = d
	}
	if d, _ := parseDuration(t.KeepaliveInterval); d > 0 {
		cfg.Transport.KeepaliveInterval = d
	}
	if d, _ := parseDuration(t.BackoffInitial); d > 0 {
		cfg.Transport.Backoff.InitialDelay = d
	}
	if d, _ := parseDuration(t.BackoffMax); d > 0 {
		cfg.Transport.Backoff.MaxDelay = d
	}
	if t.BackoffMultiplier >= 1 {
		cfg.Transport.Backoff.Multiplier = t.BackoffMultiplier
	}
	cfg.Transport.Backoff.Jitter = t.BackoffJitter
	cfg.Transport.Header = auth.Header(c.AccessKey)
	cfg.Transport.TLS = transport.TLSConfig{
		CAFile:             strings.TrimSpace(t.TLS.CAFile),
		CertFile:           strings.TrimSpace(t.TLS.CertFile),
		KeyFile:            strings.TrimSpace(t.TLS.KeyFile),
		ServerName:         strings.TrimSpace(t.TLS.ServerName),
		InsecureSkipVerify: t.TLS.InsecureSkipVerify,
	}
	return cfg
}

// SimDevices returns the simulated devices to register, in file order.
func (c ClientConfig) SimDevices() []sim.Config {
	out := make([]sim.Config, 0, len(c.Devices))
	for _, d := range c.Devices {
		sc := sim.Config{
			Name:    strings.TrimSpace(d.Name),
			Role:    sim.Role(strings.ToLower(strings.TrimSpace(d.Role))),
			Haptics: d.Haptics,
		}
		sc.Period, _ = parseDuration(d.Period)
		if len(d.Offset) == 3 {
			sc.Offset = r3.Vec{X: d.Offset[0], Y: d.Offset[1], Z: d.Offset[2]}
		}
		out = append(out, sc)
	}
	return out
}
