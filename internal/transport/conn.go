// Package transport keeps one websocket to the relay alive: it reconnects
// with exponential backoff, writes keepalives on idle links and serializes
// every send.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected = errors.New("transport: not connected")
	ErrClosed       = errors.New("transport: closed")
	errRestart      = errors.New("transport: reconnect requested")
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type MessageType int

const (
	MessageText   MessageType = websocket.TextMessage
	MessageBinary MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	if t == MessageBinary {
		return "binary"
	}
	return "text"
}

// Handlers are invoked from the connection goroutine, one at a time.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnText       func(payload []byte)
	OnBinary     func(payload []byte)
}

// Conn is a self-healing relay connection. It owns the socket; callers only
// use Send and the handlers.
type Conn struct {
	cfg      Config
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state atomic.Int32

	// sendMu serializes writes; gorilla allows one writer at a time.
	sendMu sync.Mutex

	mu            sync.Mutex
	url           string
	ws            *websocket.Conn
	attemptCancel context.CancelCauseFunc
	started       bool
	closed        bool

	restart chan struct{}
	sent    chan struct{}
}

func New(url string, cfg Config, handlers Handlers) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		cfg:      cfg,
		handlers: handlers,
		ctx:      ctx,
		cancel:   cancel,
		url:      url,
		restart:  make(chan struct{}, 1),
		sent:     make(chan struct{}, 1),
	}
}

func (c *Conn) State() State {
	return State(c.state.Load())
}

func (c *Conn) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		logs.Debugf("transport.Conn.state=%s", s)
	}
	observability.SetTransportOpen(s == StateOpen)
}

func (c *Conn) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// Start enters Connecting. Calling it twice is a no-op.
func (c *Conn) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true
	c.setState(StateConnecting)
	c.wg.Add(1)
	go c.run()
	return nil
}

// SetURL switches relays: any in-flight connect is cancelled, any open
// socket closed, and a new connect starts immediately.
func (c *Conn) SetURL(url string) {
	c.mu.Lock()
	c.url = url
	c.mu.Unlock()
	c.Reconnect()
}

// Reconnect drops the current socket or attempt and connects again without
// waiting out the backoff.
func (c *Conn) Reconnect() {
	c.mu.Lock()
	cancel := c.attemptCancel
	c.mu.Unlock()
	select {
	case c.restart <- struct{}{}:
	default:
	}
	if cancel != nil {
		cancel(errRestart)
	}
}

// Close cancels every pending operation and closes the socket without
// retrying. It waits for the connection goroutine to exit.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.setState(StateDisconnected)
	return nil
}

func (c *Conn) run() {
	defer c.wg.Done()
	b := c.cfg.Backoff.NewBackOff()

	for {
		if c.ctx.Err() != nil {
			return
		}
		drain(c.restart)

		attemptCtx, attemptCancel := context.WithCancelCause(c.ctx)
		c.mu.Lock()
		c.attemptCancel = attemptCancel
		url := c.url
		c.mu.Unlock()

		c.setState(StateConnecting)
		ws, err := c.dial(attemptCtx, url)
		if err != nil {
			attemptCancel(nil)
			observability.RecordConnectAttempt(false)
			if c.ctx.Err() != nil {
				return
			}
			if errors.Is(context.Cause(attemptCtx), errRestart) {
				b.Reset()
				continue
			}
			delay := b.NextBackOff()
			logs.Warnf("transport.Conn.connect url=%s err=%v retry_in=%s", url, err, delay)
			if !c.wait(delay) {
				return
			}
			continue
		}

		observability.RecordConnectAttempt(true)
		b.Reset()
		err = c.serve(attemptCtx, ws)
		attemptCancel(nil)
		logs.Infof("transport.Conn.disconnected url=%s err=%v", url, err)
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(err)
		}
		// A relay that accepts and immediately drops must not spin the loop.
		if !errors.Is(err, errRestart) && !c.wait(b.NextBackOff()) {
			return
		}
	}
}

// wait sleeps for delay unless closed or asked to reconnect. It reports
// false when the connection is closed.
func (c *Conn) wait(delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return false
	case <-c.restart:
		return true
	case <-t.C:
		return true
	}
}

func (c *Conn) dial(ctx context.Context, url string) (*websocket.Conn, error) {
	var tlsCfg *tls.Config
	if strings.HasPrefix(url, "wss://") {
		var err error
		if tlsCfg, err = c.cfg.TLS.ClientConfig(url); err != nil {
			return nil, err
		}
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.ConnectTimeout,
		TLSClientConfig:  tlsCfg,
	}
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}
	ws, resp, err := dialer.DialContext(ctx, url, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return ws, err
}

// serve runs one open session until the socket fails, a keepalive cannot be
// written, or ctx ends.
func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	sessCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	c.mu.Lock()
	c.ws = ws
	c.attemptCancel = cancel
	c.mu.Unlock()
	drain(c.sent)
	c.setState(StateOpen)
	logs.Infof("transport.Conn.open url=%s", c.URL())

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()
		if c.ctx.Err() == nil {
			c.setState(StateConnecting)
		}
	}()

	go func() {
		<-sessCtx.Done()
		_ = ws.Close()
	}()
	go c.keepalive(sessCtx, cancel)

	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect()
	}

	for {
		typ, payload, err := ws.ReadMessage()
		if err != nil {
			if cause := context.Cause(sessCtx); cause != nil {
				return cause
			}
			return err
		}
		switch MessageType(typ) {
		case MessageText:
			observability.RecordMessage("in", "text")
			if c.handlers.OnText != nil {
				c.handlers.OnText(payload)
			}
		case MessageBinary:
			observability.RecordMessage("in", "binary")
			if c.handlers.OnBinary != nil {
				c.handlers.OnBinary(payload)
			}
		}
	}
}

func (c *Conn) keepalive(ctx context.Context, fail context.CancelCauseFunc) {
	interval := c.cfg.KeepaliveInterval
	if interval <= 0 {
		return
	}
	t := time.NewTimer(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sent:
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(interval)
		case <-t.C:
			if err := c.Send(ctx, MessageText, c.cfg.KeepalivePayload); err != nil {
				if ctx.Err() == nil {
					fail(fmt.Errorf("transport: keepalive: %w", err))
				}
				return
			}
			t.Reset(interval)
			drain(c.sent)
		}
	}
}

// Send writes one message. Writes are serialized; a write error drops the
// session so the connection goroutine reconnects.
func (c *Conn) Send(ctx context.Context, typ MessageType, payload []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	closed, ws, drop := c.closed, c.ws, c.attemptCancel
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ws == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteMessage(int(typ), payload); err != nil {
		if drop != nil {
			drop(fmt.Errorf("transport: write: %w", err))
		}
		return err
	}
	observability.RecordMessage("out", typ.String())
	select {
	case c.sent <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) SendText(ctx context.Context, payload []byte) error {
	return c.Send(ctx, MessageText, payload)
}

func (c *Conn) SendBinary(ctx context.Context, payload []byte) error {
	return c.Send(ctx, MessageBinary, payload)
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
