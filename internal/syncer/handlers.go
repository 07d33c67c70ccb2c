package syncer

import (
	"errors"
	"fmt"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/identity"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/observability"
	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/replica"
)

func (c *Client) onConnect() {
	c.mu.Lock()
	c.local.SetInitialized(false)
	c.snapshotSeen = false
	c.fatal = nil
	id := c.local.Identity()
	c.mu.Unlock()

	hello := session.HelloNew()
	if id.Known() {
		hello = session.HelloKnown(id.PeerID, id.Token)
	}
	logs.Infof("syncer.Client.onConnect action=%q peer=%d", hello.Action, id.PeerID)
	c.sendAll([]session.Message{hello})
}

func (c *Client) onDisconnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local.SetInitialized(false)
	c.snapshotSeen = false
	logs.Infof("syncer.Client.onDisconnect reconnecting err=%v", err)
}

// onText handles one control message. Replies and resync requests are
// issued after mu is released.
func (c *Client) onText(payload []byte) {
	m, err := session.Decode(payload)
	if err != nil {
		protocolError("control", err)
		return
	}
	observability.RecordMessage("in", string(m.Action))

	c.mu.Lock()
	out, resync := c.handleLocked(m)
	conn := c.conn
	c.mu.Unlock()

	c.sendAll(out)
	if resync && conn != nil {
		logs.Warnf("syncer.Client.onText requesting fresh snapshot via reconnect")
		conn.Reconnect()
	}
}

func (c *Client) handleLocked(m session.Message) (out []session.Message, resync bool) {
	switch m.Action {
	case session.ActionIDIssued:
		if msg, ok := c.checkVersionLocked(m); !ok {
			return []session.Message{msg}, false
		}
		peer, ok := m.PeerID()
		token := m.IssuedToken()
		if !ok || peer < 0 || peer > 0xFFFF || token == "" {
			protocolError("handshake", fmt.Errorf("id's here without a usable id/token: id=%d token=%q", peer, token))
			return nil, false
		}
		id := identity.Identity{PeerID: uint16(peer), Token: token}
		c.local.SetIdentity(id)
		if c.store != nil {
			if err := c.store.Save(c.cfg.namespace(), id); err != nil {
				logs.Warnf("syncer.Client.handle persist identity err=%v", err)
			}
		}
		c.completeHandshakeLocked()
		logs.Infof("syncer.Client.handle id issued peer=%d", id.PeerID)
		return c.announceLocked(), false

	case session.ActionIDAck:
		if msg, ok := c.checkVersionLocked(m); !ok {
			return []session.Message{msg}, false
		}
		c.completeHandshakeLocked()
		logs.Infof("syncer.Client.handle id acknowledged peer=%d", c.local.Identity().PeerID)
		return c.announceLocked(), false

	case session.ActionDeviceInfo:
		if c.distrustedLocked("device info") {
			return nil, false
		}
		peer, ok := m.PeerID()
		if !ok || peer < 0 || peer > 0xFFFF {
			protocolError("device_info", errors.New("device info without peer id"))
			return nil, false
		}
		if err := device.ValidateInfos(m.Info); err != nil {
			protocolError("device_info", err)
			return nil, false
		}
		if err := c.tree.SetDevices(uint16(peer), m.Info); err != nil {
			if errors.Is(err, replica.ErrUnknownClient) {
				logs.Warnf("syncer.Client.handle device info for unknown peer=%d ignored", peer)
				return nil, false
			}
			protocolError("device_info", err)
			return nil, false
		}
		c.syncRemotesLocked()

	case session.ActionPatch:
		if c.distrustedLocked("patch") {
			return nil, false
		}
		n, err := c.tree.Apply(m.Patches)
		if err != nil {
			if errors.Is(err, replica.ErrCorrupted) {
				return []session.Message{c.reportFatalLocked(err)}, true
			}
			protocolError("patch", err)
			return nil, false
		}
		observability.RecordPatches(n)
		c.syncRemotesLocked()

	case session.ActionFullStateReset:
		if err := c.tree.Reset(m.State); err != nil {
			protocolError("snapshot", err)
			return nil, false
		}
		c.snapshotSeen = true
		if errors.Is(c.fatal, replica.ErrCorrupted) {
			logs.Infof("syncer.Client.handle snapshot restored trust")
			c.fatal = nil
		}
		c.syncRemotesLocked()

	case session.ActionDisconnect:
		if c.distrustedLocked("disconnect") {
			return nil, false
		}
		removed := c.tree.RemoveClients(m.IDs)
		for _, id := range m.IDs {
			c.dropPeerLocked(id)
		}
		logs.Infof("syncer.Client.handle disconnect ids=%v removed=%d", m.IDs, removed)
		c.syncRemotesLocked()

	case session.ActionKeepalive:

	case session.ActionError:
		c.lastError = m.Error
		logs.Warnf("syncer.Client.handle relay error=%q", m.Error)

	default:
		if m.Error != "" {
			c.lastError = m.Error
			logs.Warnf("syncer.Client.handle relay error=%q action=%q", m.Error, m.Action)
			return nil, false
		}
		logs.Debugf("syncer.Client.handle unknown action=%q", m.Action)
	}
	return nil, false
}

// distrustedLocked reports whether server-state updates must be dropped
// until a fresh snapshot arrives.
func (c *Client) distrustedLocked(what string) bool {
	if c.fatal == nil {
		return false
	}
	logs.Debugf("syncer.Client.handle %s dropped while untrusted", what)
	return true
}

func (c *Client) checkVersionLocked(m session.Message) (session.Message, bool) {
	if m.ProtocolVersion == session.ProtocolVersion {
		return session.Message{}, true
	}
	c.local.SetInitialized(false)
	err := fmt.Errorf("%w: relay=%d client=%d", ErrProtocolVersion, m.ProtocolVersion, session.ProtocolVersion)
	return c.reportFatalLocked(err), false
}

func (c *Client) completeHandshakeLocked() {
	c.local.SetInitialized(true)
	c.local.MarkAllChanged()
}

// announceLocked builds the device-info message sent right after a
// handshake.
func (c *Client) announceLocked() []session.Message {
	if m, ok := c.local.BuildDeviceInfo(); ok {
		return []session.Message{m}
	}
	return nil
}

func (c *Client) dropPeerLocked(peer int) {
	for k := range c.remotes {
		if int(k.Peer) == peer {
			delete(c.remotes, k)
		}
	}
}

// syncRemotesLocked creates, rebuilds or drops remote stores so they match
// the device infos in the server state, and picks up this peer's
// calibration.
func (c *Client) syncRemotesLocked() {
	state, err := c.tree.State()
	if err != nil {
		logs.Warnf("syncer.Client.syncRemotes state err=%v", err)
		return
	}
	self := c.local.Identity().PeerID
	if own, ok := state.Clients[self]; ok && c.local.Initialized() {
		c.local.SetCalibration(own.Calibration)
	}

	seen := make(map[reconcile.Key]struct{})
	for peer, client := range state.Clients {
		if peer == self {
			continue
		}
		for _, info := range client.Devices {
			if err := info.Validate(); err != nil {
				logs.Warnf("syncer.Client.syncRemotes skip peer=%d err=%v", peer, err)
				continue
			}
			key := reconcile.Key{Peer: peer, Device: info.ID}
			seen[key] = struct{}{}
			schema := info.Schema()
			st, ok := c.remotes[key]
			if !ok {
				c.remotes[key] = device.NewStateWithSchema(info.ID, schema)
				continue
			}
			if st.Establish(schema) {
				logs.Debugf("syncer.Client.syncRemotes schema changed key=%s", key)
			}
		}
	}
	for key := range c.remotes {
		if _, ok := seen[key]; !ok {
			delete(c.remotes, key)
		}
	}
}

func (c *Client) onBinary(payload []byte) {
	typ, err := protocol.PeekFrameType(payload)
	if err != nil {
		protocolError("frame", err)
		return
	}
	switch typ {
	case protocol.FrameState:
		observability.RecordMessage("in", "state")
		c.applyBroadcast(payload)
	case protocol.FrameHaptic:
		observability.RecordMessage("in", "haptic")
		records, err := session.ParseHaptics(payload)
		if err != nil {
			protocolError("frame", err)
			return
		}
		for _, r := range records {
			if r.DeviceID < 0 {
				continue
			}
			c.local.DispatchHaptic(uint32(r.DeviceID), r.Channel, r.Amplitude, r.Duration)
		}
	default:
		protocolError("frame", fmt.Errorf("%w: %s", protocol.ErrUnknownFrameType, typ))
	}
}

// applyBroadcast routes each device block to its remote store. Blocks for
// unknown devices and for this peer are skipped.
func (c *Client) applyBroadcast(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.snapshotSeen || c.distrustedLocked("state frame") {
		return
	}
	self := int32(c.local.Identity().PeerID)
	err := session.ParseBroadcast(frame, func(client int32, deviceID uint32, block []byte) error {
		if client == self || client < 0 || client > 0xFFFF {
			return nil
		}
		st, ok := c.remotes[reconcile.Key{Peer: uint16(client), Device: deviceID}]
		if !ok {
			return nil
		}
		_, err := st.DeSerializeData(block, 0)
		return err
	})
	if err != nil {
		protocolError("frame", err)
	}
}
