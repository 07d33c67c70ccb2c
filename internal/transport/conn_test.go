package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/xrsync/internal/testutil/testlog"
	"github.com/danmuck/xrsync/internal/testutil/tlstest"
	"github.com/gorilla/websocket"
)

type echoServer struct {
	srv        *httptest.Server
	accepted   atomic.Int32
	keepalives atomic.Int32
	// dropFirst closes the first connection right after the upgrade.
	dropFirst bool
}

func newEchoServer(t *testing.T, dropFirst bool, useTLS func(*httptest.Server)) *echoServer {
	t.Helper()
	e := &echoServer{dropFirst: dropFirst}
	upgrader := websocket.Upgrader{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := e.accepted.Add(1)
		if e.dropFirst && n == 1 {
			return
		}
		for {
			typ, payload, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if typ == websocket.TextMessage && strings.Contains(string(payload), "keepalive") {
				e.keepalives.Add(1)
				continue
			}
			if err := ws.WriteMessage(typ, payload); err != nil {
				return
			}
		}
	})
	if useTLS != nil {
		e.srv = httptest.NewUnstartedServer(handler)
		useTLS(e.srv)
	} else {
		e.srv = httptest.NewServer(handler)
	}
	t.Cleanup(e.srv.Close)
	return e
}

func (e *echoServer) url() string {
	if strings.HasPrefix(e.srv.URL, "https://") {
		return "wss://" + strings.TrimPrefix(e.srv.URL, "https://")
	}
	return "ws://" + strings.TrimPrefix(e.srv.URL, "http://")
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.ConnectTimeout = time.Second
	cfg.Backoff.InitialDelay = 10 * time.Millisecond
	cfg.Backoff.MaxDelay = 50 * time.Millisecond
	return cfg
}

type recorder struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	texts       [][]byte
	binaries    [][]byte
	connected   chan struct{}
	received    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{connected: make(chan struct{}, 8), received: make(chan struct{}, 8)}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		OnConnect: func() {
			r.mu.Lock()
			r.connects++
			r.mu.Unlock()
			r.connected <- struct{}{}
		},
		OnDisconnect: func(error) {
			r.mu.Lock()
			r.disconnects++
			r.mu.Unlock()
		},
		OnText: func(p []byte) {
			r.mu.Lock()
			r.texts = append(r.texts, p)
			r.mu.Unlock()
			r.received <- struct{}{}
		},
		OnBinary: func(p []byte) {
			r.mu.Lock()
			r.binaries = append(r.binaries, p)
			r.mu.Unlock()
			r.received <- struct{}{}
		},
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestBackoffSchedule(t *testing.T) {
	testlog.Start(t)
	b := DefaultBackoff().NewBackOff()
	want := []int{200, 400, 800, 1600, 3200, 6400, 12800, 25600, 51200, 60000, 60000}
	for i, ms := range want {
		if got := b.NextBackOff(); got != time.Duration(ms)*time.Millisecond {
			t.Fatalf("delay %d = %s want %dms", i, got, ms)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 200*time.Millisecond {
		t.Fatalf("reset delay = %s", got)
	}
}

func TestSendAndReceive(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, false, nil)
	rec := newRecorder()
	c := New(srv.url(), fastConfig(), rec.handlers())
	defer c.Close()

	if err := c.SendText(context.Background(), []byte("early")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, rec.connected, "connect")
	if c.State() != StateOpen {
		t.Fatalf("state=%s", c.State())
	}

	if err := c.SendText(context.Background(), []byte(`{"action":"device info"}`)); err != nil {
		t.Fatalf("send text: %v", err)
	}
	waitFor(t, rec.received, "text echo")
	if err := c.SendBinary(context.Background(), []byte{1, 2, 3}); err != nil {
		t.Fatalf("send binary: %v", err)
	}
	waitFor(t, rec.received, "binary echo")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.texts) != 1 || len(rec.binaries) != 1 || rec.binaries[0][2] != 3 {
		t.Fatalf("texts=%q binaries=%v", rec.texts, rec.binaries)
	}
}

func TestKeepaliveOnIdleLink(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, false, nil)
	rec := newRecorder()
	cfg := fastConfig()
	cfg.KeepaliveInterval = 30 * time.Millisecond
	c := New(srv.url(), cfg, rec.handlers())
	defer c.Close()
	_ = c.Start()
	waitFor(t, rec.connected, "connect")

	deadline := time.Now().Add(2 * time.Second)
	for srv.keepalives.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("keepalives=%d", srv.keepalives.Load())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestKeepaliveDeferredByTraffic(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, false, nil)
	rec := newRecorder()
	cfg := fastConfig()
	cfg.KeepaliveInterval = 200 * time.Millisecond
	c := New(srv.url(), cfg, rec.handlers())
	defer c.Close()
	_ = c.Start()
	waitFor(t, rec.connected, "connect")

	for i := 0; i < 10; i++ {
		if err := c.SendBinary(context.Background(), []byte{1}); err != nil {
			t.Fatalf("send: %v", err)
		}
		waitFor(t, rec.received, "echo")
		time.Sleep(40 * time.Millisecond)
	}
	if n := srv.keepalives.Load(); n != 0 {
		t.Fatalf("keepalive sent despite traffic: %d", n)
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, true, nil)
	rec := newRecorder()
	c := New(srv.url(), fastConfig(), rec.handlers())
	defer c.Close()
	_ = c.Start()

	waitFor(t, rec.connected, "first connect")
	waitFor(t, rec.connected, "reconnect")
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.disconnects < 1 || srv.accepted.Load() < 2 {
		t.Fatalf("disconnects=%d accepted=%d", rec.disconnects, srv.accepted.Load())
	}
}

func TestReconnectRequest(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, false, nil)
	rec := newRecorder()
	c := New(srv.url(), fastConfig(), rec.handlers())
	defer c.Close()
	_ = c.Start()
	waitFor(t, rec.connected, "connect")

	c.Reconnect()
	waitFor(t, rec.connected, "reconnect")
	deadline := time.Now().Add(time.Second)
	for srv.accepted.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("accepted=%d", srv.accepted.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetriesUntilRelayAppears(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	rec := newRecorder()
	c := New("ws://"+addr, fastConfig(), rec.handlers())
	defer c.Close()
	_ = c.Start()
	time.Sleep(50 * time.Millisecond)
	if c.State() != StateConnecting {
		t.Fatalf("state=%s", c.State())
	}

	srv := newEchoServer(t, false, nil)
	c.SetURL(srv.url())
	waitFor(t, rec.connected, "connect after url change")
}

func TestCloseStopsEverything(t *testing.T) {
	testlog.Start(t)
	srv := newEchoServer(t, false, nil)
	rec := newRecorder()
	c := New(srv.url(), fastConfig(), rec.handlers())
	_ = c.Start()
	waitFor(t, rec.connected, "connect")

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("state=%s", c.State())
	}
	if err := c.SendText(context.Background(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed on restart, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if srv.accepted.Load() != 1 {
		t.Fatalf("closed conn reconnected: accepted=%d", srv.accepted.Load())
	}
}

func TestTLSRelay(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir())
	server := ca.IssueLoopback(t, "relay")

	srv := newEchoServer(t, false, func(s *httptest.Server) {
		tlsCfg, err := ServerConfig(server.CertFile, server.KeyFile, "")
		if err != nil {
			t.Fatalf("server tls: %v", err)
		}
		s.TLS = tlsCfg
		s.StartTLS()
	})

	rec := newRecorder()
	cfg := fastConfig()
	cfg.TLS = TLSConfig{CAFile: ca.CAFile()}
	c := New(srv.url(), cfg, rec.handlers())
	defer c.Close()
	_ = c.Start()
	waitFor(t, rec.connected, "tls connect")
}

func TestMutualTLSRelay(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, t.TempDir())
	server := ca.IssueLoopback(t, "relay")
	client := ca.IssueClient(t, "headset")

	srv := newEchoServer(t, false, func(s *httptest.Server) {
		tlsCfg, err := ServerConfig(server.CertFile, server.KeyFile, ca.CAFile())
		if err != nil {
			t.Fatalf("server tls: %v", err)
		}
		s.TLS = tlsCfg
		s.StartTLS()
	})

	anon := newRecorder()
	cfg := fastConfig()
	cfg.TLS = TLSConfig{CAFile: ca.CAFile()}
	rejected := New(srv.url(), cfg, anon.handlers())
	_ = rejected.Start()
	time.Sleep(150 * time.Millisecond)
	_ = rejected.Close()
	anon.mu.Lock()
	connects := anon.connects
	anon.mu.Unlock()
	if connects != 0 {
		t.Fatalf("connected without a client certificate")
	}

	rec := newRecorder()
	cfg.TLS = TLSConfig{CAFile: ca.CAFile(), CertFile: client.CertFile, KeyFile: client.KeyFile}
	c := New(srv.url(), cfg, rec.handlers())
	defer c.Close()
	_ = c.Start()
	waitFor(t, rec.connected, "mtls connect")
}

func TestTLSConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := (TLSConfig{CertFile: "c.pem"}).Validate(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected key required, got %v", err)
	}
	if err := (TLSConfig{CAFile: "ca.pem", InsecureSkipVerify: true}).Validate(); !errors.Is(err, ErrTLSInsecureSkipNotAllow) {
		t.Fatalf("expected insecure conflict, got %v", err)
	}
	if _, err := ServerConfig("", "k", ""); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected cert required, got %v", err)
	}
}
