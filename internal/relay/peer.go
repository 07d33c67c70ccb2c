package relay

import (
	"sync"
	"time"

	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/gorilla/websocket"
)

type outbound struct {
	typ  int
	data []byte
}

// peer is one websocket connection. Writes go through send so that the
// order of queued messages matches the order the relay produced them in.
type peer struct {
	conn *websocket.Conn
	send chan outbound

	id     uint16
	joined bool

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(conn *websocket.Conn, queue int) *peer {
	return &peer{
		conn: conn,
		send: make(chan outbound, queue),
		done: make(chan struct{}),
	}
}

// enqueue reports false when the peer is closed or its queue is full.
func (p *peer) enqueue(typ int, data []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- outbound{typ: typ, data: data}:
		return true
	default:
		logs.Warnf("relay.peer.enqueue queue full peer=%d", p.id)
		p.close()
		return false
	}
}

func (p *peer) enqueueMessage(m session.Message) bool {
	raw, err := session.Encode(m)
	if err != nil {
		logs.Errf("relay.peer.enqueueMessage encode action=%q err=%v", m.Action, err)
		return false
	}
	return p.enqueue(websocket.TextMessage, raw)
}

func (p *peer) writePump(timeout time.Duration) {
	defer p.close()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			if timeout > 0 {
				_ = p.conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			if err := p.conn.WriteMessage(msg.typ, msg.data); err != nil {
				logs.Debugf("relay.peer.writePump peer=%d err=%v", p.id, err)
				return
			}
		}
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}
