package syncer

import (
	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/local"
	"github.com/danmuck/xrsync/internal/reconcile"
	"github.com/danmuck/xrsync/internal/replica"
)

type LocalDevice = local.Summary

// Status is a point-in-time view of the session for operators.
type Status struct {
	RelayURL      string          `json:"relayUrl"`
	Transport     string          `json:"transport"`
	PeerID        uint16          `json:"peerId"`
	IdentityKnown bool            `json:"identityKnown"`
	Initialized   bool            `json:"initialized"`
	SnapshotSeen  bool            `json:"snapshotSeen"`
	Trusted       bool            `json:"trusted"`
	Fatal         string          `json:"fatal,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	LocalDevices  []LocalDevice   `json:"localDevices"`
	Remote        []reconcile.Key `json:"remote"`
	ServerState   replica.State   `json:"serverState"`
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.local.Identity()
	st := Status{
		RelayURL:      c.cfg.RelayURL,
		Transport:     "disconnected",
		PeerID:        id.PeerID,
		IdentityKnown: id.Known(),
		Initialized:   c.local.Initialized(),
		SnapshotSeen:  c.snapshotSeen,
		Trusted:       c.trustedLocked(),
		LastError:     c.lastError,
		Remote:        c.recon.Keys(),
	}
	if c.conn != nil {
		st.Transport = c.conn.State().String()
	}
	if c.fatal != nil {
		st.Fatal = c.fatal.Error()
	}
	if server, err := c.tree.State(); err == nil {
		st.ServerState = server
	}
	st.LocalDevices = c.local.Summaries()
	return st
}

// RemoteState returns the store for one remote device.
func (c *Client) RemoteState(key reconcile.Key) (*device.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.remotes[key]
	return st, ok
}
