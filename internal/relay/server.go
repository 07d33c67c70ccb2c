package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/xrsync/internal/device"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/pose"
	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/danmuck/xrsync/internal/replica"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrUnknownPeer    = errors.New("relay: unknown peer")
	ErrPeersExhausted = errors.New("relay: no free peer ids")
)

// Server is the relay. Every change to the shared tree and every message
// derived from it is produced under mu so all peers observe one order.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	tree    *replica.Tree
	peers   map[uint16]*peer
	tokens  map[uint16]string
	nextID  uint16
	pending map[uint16]session.ClientBlocks
	conns   map[*peer]struct{}
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Server{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(*http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		tree:    replica.NewTree(),
		peers:   make(map[uint16]*peer),
		tokens:  make(map[uint16]string),
		nextID:  1,
		pending: make(map[uint16]session.ClientBlocks),
		conns:   make(map[*peer]struct{}),
	}, nil
}

// ServeHTTP upgrades the request and serves the peer until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Warnf("relay.Server.ServeHTTP upgrade remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	p := newPeer(conn, s.cfg.SendQueue)
	s.mu.Lock()
	s.conns[p] = struct{}{}
	s.mu.Unlock()
	logs.Infof("relay.Server.ServeHTTP connected remote=%s", r.RemoteAddr)

	go p.writePump(s.cfg.WriteTimeout)
	defer s.leave(p)
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			logs.Debugf("relay.Server.ServeHTTP read peer=%d err=%v", p.id, err)
			return
		}
		switch typ {
		case websocket.TextMessage:
			s.handleText(p, data)
		case websocket.BinaryMessage:
			s.handleBinary(p, data)
		}
	}
}

// Run broadcasts buffered uploads every FrameInterval until ctx ends, then
// closes every connection.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			s.Flush()
		}
	}
}

// Flush sends one aggregated state frame to every joined peer.
func (s *Server) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return
	}
	ids := make([]uint16, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	clients := make([]session.ClientBlocks, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, s.pending[id])
	}
	clear(s.pending)

	frame := session.AppendBroadcast(nil, clients)
	for _, p := range s.peers {
		p.enqueue(websocket.BinaryMessage, frame)
	}
	observability.RecordRelayBroadcast()
}

func (s *Server) Close() {
	s.mu.Lock()
	conns := make([]*peer, 0, len(s.conns))
	for p := range s.conns {
		conns = append(conns, p)
	}
	s.mu.Unlock()
	for _, p := range conns {
		p.close()
	}
}

// Peers returns the joined peer ids in ascending order.
func (s *Server) Peers() []uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint16, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// State returns the shared tree as peers see it.
func (s *Server) State() (replica.State, error) {
	return s.tree.State()
}

// SetCalibration replaces a joined peer's calibration and patches every
// peer.
func (s *Server) SetCalibration(peer uint16, t pose.Transform) error {
	value, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[peer]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, peer)
	}
	if s.cfg.Calibrations == nil {
		s.cfg.Calibrations = make(map[uint16]pose.Transform)
	}
	s.cfg.Calibrations[peer] = t
	return s.patchLocked(replica.Op{Op: replica.OpReplace, Path: replica.ClientPath(peer) + "/calibration", Value: value})
}

// patchLocked applies op to the tree and sends it to every joined peer.
func (s *Server) patchLocked(ops ...replica.Op) error {
	if err := s.tree.ApplyOps(ops); err != nil {
		return err
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return err
	}
	msg := session.PatchMessage(raw)
	for _, p := range s.peers {
		p.enqueueMessage(msg)
	}
	return nil
}

func (s *Server) handleText(p *peer, data []byte) {
	m, err := session.Decode(data)
	if err != nil {
		logs.Warnf("relay.Server.handleText peer=%d err=%v", p.id, err)
		p.enqueueMessage(session.ErrorReport(err))
		return
	}
	observability.RecordMessage("in", string(m.Action))

	s.mu.Lock()
	defer s.mu.Unlock()
	switch m.Action {
	case session.ActionRequestID:
		s.issueLocked(p)
	case session.ActionReclaimID:
		id, ok := m.PeerID()
		if ok && id > 0 && id <= 0xFFFF && s.reclaimableLocked(uint16(id), m.Token) {
			s.joinLocked(p, uint16(id), s.handshakeReply(session.IDAck()))
			return
		}
		logs.Infof("relay.Server.handleText reclaim refused id=%d", id)
		s.issueLocked(p)
	case session.ActionDeviceInfo:
		s.deviceInfoLocked(p, m.Info)
	case session.ActionHaptic:
		s.hapticLocked(p, m)
	case session.ActionKeepalive:
	case session.ActionError:
		logs.Warnf("relay.Server.handleText peer=%d reported error=%q", p.id, m.Error)
	default:
		p.enqueueMessage(session.ErrorReport(fmt.Errorf("unsupported action %q", m.Action)))
	}
}

func (s *Server) handshakeReply(m session.Message) session.Message {
	m.ProtocolVersion = s.cfg.ProtocolVersion
	return m
}

func (s *Server) reclaimableLocked(id uint16, token string) bool {
	issued, ok := s.tokens[id]
	if !ok || token == "" || issued != token {
		return false
	}
	_, taken := s.peers[id]
	return !taken
}

func (s *Server) issueLocked(p *peer) {
	if p.joined {
		p.enqueueMessage(session.ErrorReport(errors.New("already joined")))
		return
	}
	id, err := s.allocateLocked()
	if err != nil {
		logs.Errf("relay.Server.issue err=%v", err)
		p.enqueueMessage(session.ErrorReport(err))
		p.close()
		return
	}
	token := uuid.NewString()
	s.tokens[id] = token
	s.joinLocked(p, id, s.handshakeReply(session.IDIssued(id, token)))
}

func (s *Server) allocateLocked() (uint16, error) {
	for range 0xFFFF {
		id := s.nextID
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, issued := s.tokens[id]; !issued {
			return id, nil
		}
	}
	return 0, ErrPeersExhausted
}

// joinLocked answers the handshake, adds the peer to the tree, sends it a
// full snapshot and patches everyone else.
func (s *Server) joinLocked(p *peer, id uint16, reply session.Message) {
	if p.joined {
		p.enqueueMessage(session.ErrorReport(errors.New("already joined")))
		return
	}
	p.id = id
	p.enqueueMessage(reply)
	if reply.ProtocolVersion != session.ProtocolVersion {
		// The client will refuse the session; keep it out of the tree.
		return
	}

	op, err := replica.AddClientOp(id, replica.Client{Connected: true, Calibration: s.cfg.calibration(id)})
	if err == nil {
		err = s.patchLocked(op)
	}
	if err != nil {
		logs.Errf("relay.Server.join add peer=%d err=%v", id, err)
		return
	}
	p.joined = true
	s.peers[id] = p
	observability.SetRelayPeers(len(s.peers))

	snapshot, err := s.tree.MarshalJSON()
	if err != nil {
		logs.Errf("relay.Server.join snapshot peer=%d err=%v", id, err)
		return
	}
	p.enqueueMessage(session.FullStateReset(snapshot))
	logs.Infof("relay.Server.join peer=%d action=%q peers=%d", id, reply.Action, len(s.peers))
}

func (s *Server) deviceInfoLocked(p *peer, infos []device.Info) {
	if !p.joined {
		p.enqueueMessage(session.ErrorReport(errors.New("device info before handshake")))
		return
	}
	if err := device.ValidateInfos(infos); err != nil {
		logs.Warnf("relay.Server.deviceInfo peer=%d rejected err=%v", p.id, err)
		p.enqueueMessage(session.ErrorReport(err))
		return
	}
	if err := s.tree.SetDevices(p.id, infos); err != nil {
		logs.Errf("relay.Server.deviceInfo peer=%d err=%v", p.id, err)
		return
	}
	id := int(p.id)
	msg := session.DeviceInfoMessage(&id, infos)
	for other, q := range s.peers {
		if other != p.id {
			q.enqueueMessage(msg)
		}
	}
	logs.Debugf("relay.Server.deviceInfo peer=%d devices=%d", p.id, len(infos))
}

func (s *Server) hapticLocked(p *peer, m session.Message) {
	target, ok := m.PeerID()
	if !p.joined || !ok || m.Haptic == nil || m.IntValue < 0 {
		p.enqueueMessage(session.ErrorReport(errors.New("malformed haptic request")))
		return
	}
	var q *peer
	if target >= 0 && target <= 0xFFFF {
		q = s.peers[uint16(target)]
	}
	if q == nil {
		p.enqueueMessage(session.ErrorReport(fmt.Errorf("%w: %d", ErrUnknownPeer, target)))
		return
	}
	frame := session.AppendHaptic(nil, session.HapticRecord{
		DeviceID:  int32(m.IntValue),
		Channel:   m.Haptic.Channel,
		Duration:  m.Haptic.Duration,
		Amplitude: m.Haptic.Amplitude,
	})
	q.enqueue(websocket.BinaryMessage, frame)
}

func (s *Server) handleBinary(p *peer, data []byte) {
	typ, err := protocol.PeekFrameType(data)
	if err != nil || typ != protocol.FrameState {
		logs.Debugf("relay.Server.handleBinary peer=%d type=%v err=%v", p.id, typ, err)
		return
	}
	var blocks []byte
	count := 0
	claimed, err := session.ParseUpload(data, func(_ int32, _ uint32, block []byte) error {
		blocks = append(blocks, block...)
		count++
		return nil
	})
	if err != nil {
		observability.RecordProtocolError("upload")
		logs.Debugf("relay.Server.handleBinary peer=%d err=%v", p.id, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.joined {
		return
	}
	if claimed != int32(p.id) {
		logs.Debugf("relay.Server.handleBinary peer=%d claimed=%d", p.id, claimed)
	}
	s.pending[p.id] = session.ClientBlocks{ClientID: int32(p.id), Count: count, Blocks: blocks}
}

// leave drops the peer from the tree and tells everyone else.
func (s *Server) leave(p *peer) {
	p.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, p)
	if !p.joined || s.peers[p.id] != p {
		return
	}
	delete(s.peers, p.id)
	delete(s.pending, p.id)
	s.tree.RemoveClients([]int{int(p.id)})
	msg := session.DisconnectMessage([]int{int(p.id)})
	for _, q := range s.peers {
		q.enqueueMessage(msg)
	}
	observability.SetRelayPeers(len(s.peers))
	logs.Infof("relay.Server.leave peer=%d peers=%d", p.id, len(s.peers))
}
