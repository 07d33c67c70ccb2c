package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/xrsync/internal/pose"
	"github.com/danmuck/xrsync/internal/relay"
)

type calibrationEntry struct {
	Peer     int       `toml:"peer"`
	Position []float64 `toml:"position"`
	Rotation []float64 `toml:"rotation"`
	Scale    []float64 `toml:"scale"`
}

type fileConfig struct {
	Addr            string             `toml:"addr"`
	Path            string             `toml:"path"`
	FrameInterval   string             `toml:"frame_interval"`
	WriteTimeout    string             `toml:"write_timeout"`
	SendQueue       int                `toml:"send_queue"`
	AccessKey       string             `toml:"access_key"`
	CorsOrigins     []string           `toml:"cors_origins"`
	TLSCertFile     string             `toml:"tls_cert_file"`
	TLSKeyFile      string             `toml:"tls_key_file"`
	TLSClientCAFile string             `toml:"tls_client_ca_file"`
	Calibrations    []calibrationEntry `toml:"calibrations"`
}

type serviceConfig struct {
	Addr            string
	Path            string
	CorsOrigins     []string
	AccessKey       string
	TLSCertFile     string
	TLSKeyFile      string
	TLSClientCAFile string
	Relay           relay.Config
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Addr:  ":7400",
		Path:  "/session",
		Relay: relay.DefaultConfig(),
	}
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load relay config: %w", err)
	}

	if meta.IsDefined("addr") {
		if v := strings.TrimSpace(raw.Addr); v != "" {
			cfg.Addr = v
		}
	}
	if meta.IsDefined("path") {
		v := strings.TrimSpace(raw.Path)
		if !strings.HasPrefix(v, "/") {
			return serviceConfig{}, fmt.Errorf("path must start with /: %q", raw.Path)
		}
		cfg.Path = v
	}
	if meta.IsDefined("frame_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.FrameInterval))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse frame_interval: %w", err)
		}
		cfg.Relay.FrameInterval = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Relay.WriteTimeout = d
	}
	if meta.IsDefined("send_queue") {
		cfg.Relay.SendQueue = raw.SendQueue
	}
	if meta.IsDefined("access_key") {
		cfg.AccessKey = strings.TrimSpace(raw.AccessKey)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("tls_cert_file") {
		cfg.TLSCertFile = strings.TrimSpace(raw.TLSCertFile)
	}
	if meta.IsDefined("tls_key_file") {
		cfg.TLSKeyFile = strings.TrimSpace(raw.TLSKeyFile)
	}
	if meta.IsDefined("tls_client_ca_file") {
		cfg.TLSClientCAFile = strings.TrimSpace(raw.TLSClientCAFile)
	}
	if meta.IsDefined("calibrations") {
		cal, err := parseCalibrations(raw.Calibrations)
		if err != nil {
			return serviceConfig{}, err
		}
		cfg.Relay.Calibrations = cal
	}

	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return serviceConfig{}, fmt.Errorf("tls_cert_file and tls_key_file must be set together")
	}
	if err := cfg.Relay.Validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

func parseCalibrations(entries []calibrationEntry) (map[uint16]pose.Transform, error) {
	out := make(map[uint16]pose.Transform, len(entries))
	for i, e := range entries {
		if e.Peer <= 0 || e.Peer > 0xFFFF {
			return nil, fmt.Errorf("calibrations[%d]: peer out of range: %d", i, e.Peer)
		}
		t := pose.IdentityTransform()
		if e.Position != nil {
			v, err := vector(e.Position)
			if err != nil {
				return nil, fmt.Errorf("calibrations[%d].position: %w", i, err)
			}
			t.Position = v
		}
		if e.Scale != nil {
			v, err := vector(e.Scale)
			if err != nil {
				return nil, fmt.Errorf("calibrations[%d].scale: %w", i, err)
			}
			t.Scale = v
		}
		if e.Rotation != nil {
			if len(e.Rotation) != 4 {
				return nil, fmt.Errorf("calibrations[%d].rotation: need x, y, z, w", i)
			}
			t.Rotation = pose.Quaternion{X: e.Rotation[0], Y: e.Rotation[1], Z: e.Rotation[2], W: e.Rotation[3]}
		}
		out[uint16(e.Peer)] = t
	}
	return out, nil
}

func vector(v []float64) (pose.Vector, error) {
	if len(v) != 3 {
		return pose.Vector{}, fmt.Errorf("need 3 components, got %d", len(v))
	}
	return pose.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}
