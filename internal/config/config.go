package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ClientConfig is the on-disk shape of a sync client config.
type ClientConfig struct {
	RelayURL          string          `toml:"relay_url"`
	AccessKey         string          `toml:"access_key"`
	IdentityPath      string          `toml:"identity_path"`
	IdentityNamespace string          `toml:"identity_namespace"`
	TickInterval      string          `toml:"tick_interval"`
	StatusAddr        string          `toml:"status_addr"`
	CorsOrigins       []string        `toml:"cors_origins"`
	Transport         TransportConfig `toml:"transport"`
	Devices           []DeviceConfig  `toml:"devices"`
}

type TransportConfig struct {
	ConnectTimeout    string    `toml:"connect_timeout"`
	KeepaliveInterval string    `toml:"keepalive_interval"`
	BackoffInitial    string    `toml:"backoff_initial"`
	BackoffMax        string    `toml:"backoff_max"`
	BackoffMultiplier float64   `toml:"backoff_multiplier"`
	BackoffJitter     bool      `toml:"backoff_jitter"`
	TLS               TLSConfig `toml:"tls"`
}

type TLSConfig struct {
	CAFile             string `toml:"ca_file"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	ServerName         string `toml:"server_name"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	Name    string    `toml:"name"`
	Role    string    `toml:"role"`
	Haptics bool      `toml:"haptics"`
	Period  string    `toml:"period"`
	Offset  []float64 `toml:"offset"`
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.IdentityPath == "" {
		cfg.IdentityPath = "xrsync-identity.db"
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = "127.0.0.1:7401"
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	raw := strings.TrimSpace(cfg.RelayURL)
	if raw == "" {
		return fmt.Errorf("client config missing relay_url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("client config relay_url invalid: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("client config relay_url scheme must be ws or wss, got %q", u.Scheme)
	}
	for name, v := range map[string]string{
		"tick_interval":                cfg.TickInterval,
		"transport.connect_timeout":    cfg.Transport.ConnectTimeout,
		"transport.keepalive_interval": cfg.Transport.KeepaliveInterval,
		"transport.backoff_initial":    cfg.Transport.BackoffInitial,
		"transport.backoff_max":        cfg.Transport.BackoffMax,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("client config %s: %w", name, err)
		}
	}
	if m := cfg.Transport.BackoffMultiplier; m != 0 && m < 1 {
		return fmt.Errorf("client config transport.backoff_multiplier must be >= 1")
	}
	for i, d := range cfg.Devices {
		if err := ValidateDevice(d); err != nil {
			return fmt.Errorf("device[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func ValidateDevice(d DeviceConfig) error {
	switch strings.ToLower(strings.TrimSpace(d.Role)) {
	case "head", "left", "right":
	default:
		return fmt.Errorf("role must be head, left or right, got %q", d.Role)
	}
	if len(d.Offset) != 0 && len(d.Offset) != 3 {
		return fmt.Errorf("offset needs 3 components, got %d", len(d.Offset))
	}
	if _, err := parseDuration(d.Period); err != nil {
		return fmt.Errorf("period: %w", err)
	}
	return nil
}

// parseDuration treats an empty string as unset.
func parseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}
