package syncer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danmuck/xrsync/internal/identity"
	"github.com/danmuck/xrsync/internal/local"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/transport"
)

var (
	ErrMissingRelayURL = errors.New("syncer: relay url required")
	ErrMissingLocal    = errors.New("syncer: local aggregator required")
)

// Config defines client session settings.
type Config struct {
	RelayURL string
	// IdentityNamespace keys the persisted identity; defaults to RelayURL.
	IdentityNamespace string
	TickInterval      time.Duration
	Transport         transport.Config
}

func DefaultConfig() Config {
	tc := transport.DefaultConfig()
	tc.KeepalivePayload = session.KeepalivePayload()
	return Config{
		TickInterval: 20 * time.Millisecond,
		Transport:    tc,
	}
}

func (c Config) namespace() string {
	if ns := strings.TrimSpace(c.IdentityNamespace); ns != "" {
		return ns
	}
	return strings.TrimSpace(c.RelayURL)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.RelayURL) == "" {
		return ErrMissingRelayURL
	}
	return c.Transport.TLS.Validate()
}

// Conn is the slice of transport.Conn the client drives.
type Conn interface {
	Start() error
	Send(ctx context.Context, typ transport.MessageType, payload []byte) error
	Reconnect()
	Close() error
	State() transport.State
}

// Dialer builds the connection; tests substitute a fake.
type Dialer func(url string, cfg transport.Config, h transport.Handlers) Conn

func DialTransport(url string, cfg transport.Config, h transport.Handlers) Conn {
	return transport.New(url, cfg, h)
}

// Deps are the collaborators a Client is built from.
type Deps struct {
	Identity identity.Store
	Local    *local.Aggregator
	Proxies  reconcile.ProxyFactory
	Dial     Dialer
}
