// Package syncer runs one client session against a relay: handshake,
// device-info announcements, state upload, replicated server state and
// remote device routing.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/identity"
	"github.com/danmuck/xrsync/internal/local"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/replica"
	"github.com/danmuck/xrsync/internal/transport"
)

var (
	ErrProtocolVersion = errors.New("syncer: protocol version mismatch")
	ErrNotInitialized  = errors.New("syncer: session not initialized")
	ErrRunning         = errors.New("syncer: already running")
)

// Client is the explicit session handle. Remote and server state are only
// written from the transport goroutine; local state only from the tick
// loop. Both take mu before touching shared state.
type Client struct {
	cfg   Config
	store identity.Store
	local *local.Aggregator
	dial  Dialer
	recon *reconcile.Reconciler

	mu           sync.Mutex
	conn         Conn
	tree         *replica.Tree
	remotes      map[reconcile.Key]*device.State
	snapshotSeen bool
	fatal        error
	lastError    string
	running      bool

	errs chan error
}

func New(cfg Config, deps Deps) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Local == nil {
		return nil, ErrMissingLocal
	}
	if deps.Dial == nil {
		deps.Dial = DialTransport
	}
	if deps.Proxies == nil {
		deps.Proxies = reconcile.NewRecordingFactory()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if len(cfg.Transport.KeepalivePayload) == 0 {
		cfg.Transport.KeepalivePayload = session.KeepalivePayload()
	}

	c := &Client{
		cfg:     cfg,
		store:   deps.Identity,
		local:   deps.Local,
		dial:    deps.Dial,
		recon:   reconcile.New(deps.Proxies),
		tree:    replica.NewTree(),
		remotes: make(map[reconcile.Key]*device.State),
		errs:    make(chan error, 16),
	}
	c.loadIdentity()
	return c, nil
}

func (c *Client) loadIdentity() {
	if c.store == nil {
		return
	}
	id, err := c.store.Load(c.cfg.namespace())
	switch {
	case err == nil:
		c.local.SetIdentity(id)
		logs.Infof("syncer.Client.loadIdentity peer=%d namespace=%s", id.PeerID, c.cfg.namespace())
	case errors.Is(err, identity.ErrNotFound):
		logs.Debugf("syncer.Client.loadIdentity none namespace=%s", c.cfg.namespace())
	default:
		logs.Warnf("syncer.Client.loadIdentity err=%v", err)
	}
}

// Errors delivers session-fatal protocol errors. Transport failures never
// appear here.
func (c *Client) Errors() <-chan error {
	return c.errs
}

// Connect builds and starts the transport without running the tick loop.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return ErrRunning
	}
	conn := c.dial(c.cfg.RelayURL, c.cfg.Transport, transport.Handlers{
		OnConnect:    c.onConnect,
		OnDisconnect: c.onDisconnect,
		OnText:       c.onText,
		OnBinary:     c.onBinary,
	})
	c.conn = conn
	c.mu.Unlock()
	return conn.Start()
}

// Run connects and ticks until ctx ends, then tears the session down.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrRunning
	}
	c.running = true
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}
	logs.Infof("syncer.Client.Run relay=%s tick=%s", c.cfg.RelayURL, c.cfg.TickInterval)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.running = false
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	c.recon.Clear()
	c.local.SetInitialized(false)
	logs.Infof("syncer.Client.shutdown relay=%s", c.cfg.RelayURL)
}

func (c *Client) connection() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) sendMessage(ctx context.Context, m session.Message) error {
	conn := c.connection()
	if conn == nil {
		return transport.ErrNotConnected
	}
	raw, err := session.Encode(m)
	if err != nil {
		return err
	}
	return conn.Send(ctx, transport.MessageText, raw)
}

func (c *Client) sendAll(msgs []session.Message) {
	for _, m := range msgs {
		if err := c.sendMessage(context.Background(), m); err != nil {
			logs.Debugf("syncer.Client.send action=%q err=%v", m.Action, err)
			continue
		}
		observability.RecordMessage("out", string(m.Action))
	}
}

// canUpload reports whether local data may be sent.
func (c *Client) canUpload() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal == nil && c.local.Initialized()
}

// trusted reports whether the server state may drive the reconciler.
func (c *Client) trustedLocked() bool {
	return c.fatal == nil && c.snapshotSeen && c.local.Initialized()
}

// Tick runs one local pass: refresh devices, announce changed schemas,
// upload values and reconcile remote proxies.
func (c *Client) Tick(ctx context.Context) {
	c.local.Tick()

	if c.canUpload() {
		if m, ok := c.local.BuildDeviceInfo(); ok {
			if err := c.sendMessage(ctx, m); err != nil {
				// Re-announce on the next tick.
				c.local.MarkAllChanged()
				logs.Debugf("syncer.Client.Tick device info err=%v", err)
			} else {
				observability.RecordMessage("out", string(session.ActionDeviceInfo))
			}
		}
		if frame, err := c.local.BuildFrame(); err != nil {
			logs.Warnf("syncer.Client.Tick build frame err=%v", err)
		} else if conn := c.connection(); conn != nil {
			if err := conn.Send(ctx, transport.MessageBinary, frame); err != nil {
				logs.Tracef("syncer.Client.Tick upload err=%v", err)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.trustedLocked() {
		return
	}
	c.reconcileLocked()
}

func (c *Client) reconcileLocked() {
	state, err := c.tree.State()
	if err != nil {
		logs.Warnf("syncer.Client.reconcile state err=%v", err)
		return
	}
	delete(state.Clients, c.local.Identity().PeerID)
	c.recon.Reconcile(state, func(k reconcile.Key) (*device.State, bool) {
		st, ok := c.remotes[k]
		return st, ok
	})
}

// SendHaptic asks the relay to forward an impulse to another peer's device.
func (c *Client) SendHaptic(ctx context.Context, peer uint16, deviceID uint32, channel uint32, amplitude, duration float32) error {
	if !c.canUpload() {
		return ErrNotInitialized
	}
	return c.sendMessage(ctx, session.HapticMessage(peer, deviceID, session.HapticRequest{
		Channel:   channel,
		Amplitude: amplitude,
		Duration:  duration,
	}))
}

// reportFatal records a session-fatal error. The caller holds mu.
func (c *Client) reportFatalLocked(err error) session.Message {
	c.fatal = err
	c.lastError = err.Error()
	logs.Errf("syncer.Client.fatal err=%v", err)
	select {
	case c.errs <- err:
	default:
	}
	return session.ErrorReport(err)
}

func protocolError(category string, err error) {
	observability.RecordProtocolError(category)
	logs.Warnf("syncer.Client.protocol category=%s err=%v", category, err)
}
