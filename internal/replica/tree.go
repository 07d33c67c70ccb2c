package replica

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/pose"
)

var ErrUnknownClient = errors.New("replica: unknown client")

// Client is one peer's entry under /clients.
type Client struct {
	Connected   bool           `json:"connected"`
	Calibration pose.Transform `json:"calibration"`
	Devices     []device.Info  `json:"devices"`
}

// State is the typed view of the replicated document.
type State struct {
	Clients map[uint16]Client `json:"clients"`
}

// Peers returns client ids in ascending order.
func (s State) Peers() []uint16 {
	ids := make([]uint16, 0, len(s.Clients))
	for id := range s.Clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Tree holds the replicated server state as a generic JSON document. It is
// only changed by full snapshots and patches, never diffed locally.
type Tree struct {
	mu      sync.RWMutex
	doc     any
	version uint64
}

func emptyDoc() any {
	return map[string]any{"clients": map[string]any{}}
}

func NewTree() *Tree {
	return &Tree{doc: emptyDoc()}
}

// Reset replaces the whole document. An empty or null snapshot yields an
// empty client map.
func (t *Tree) Reset(raw json.RawMessage) error {
	doc := emptyDoc()
	if len(raw) > 0 && string(raw) != "null" {
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("%w: snapshot: %v", ErrInvalidPatch, err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: snapshot is not an object", ErrInvalidPatch)
		}
		if _, ok := obj["clients"]; !ok {
			obj["clients"] = map[string]any{}
		}
		doc = obj
	}
	t.mu.Lock()
	t.doc = doc
	t.version++
	t.mu.Unlock()
	return nil
}

// Apply parses and applies a patch array atomically. It returns the number
// of operations applied. A missing path is reported wrapped in both
// ErrCorrupted and ErrPathNotFound.
func (t *Tree) Apply(raw json.RawMessage) (int, error) {
	ops, err := ParseOps(raw)
	if err != nil {
		return 0, err
	}
	if err := t.ApplyOps(ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (t *Tree) ApplyOps(ops []Op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := Apply(t.doc, ops)
	if err != nil {
		if errors.Is(err, ErrPathNotFound) {
			return fmt.Errorf("%w: %w", ErrCorrupted, err)
		}
		return err
	}
	t.doc = next
	t.version++
	return nil
}

// Version counts successful changes, for cheap change detection.
func (t *Tree) Version() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Doc returns a deep copy of the document.
func (t *Tree) Doc() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return deepCopy(t.doc)
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return json.Marshal(t.doc)
}

// State decodes the typed view. Unknown fields are ignored.
func (t *Tree) State() (State, error) {
	raw, err := t.MarshalJSON()
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("replica: decode state: %w", err)
	}
	if s.Clients == nil {
		s.Clients = map[uint16]Client{}
	}
	return s, nil
}

// ClientPath is the JSON pointer of one client entry.
func ClientPath(peer uint16) string {
	return "/clients/" + strconv.Itoa(int(peer))
}

// AddClientOp builds the operation inserting or replacing a client entry.
func AddClientOp(peer uint16, c Client) (Op, error) {
	if c.Devices == nil {
		c.Devices = []device.Info{}
	}
	value, err := json.Marshal(c)
	if err != nil {
		return Op{}, err
	}
	return Op{Op: OpAdd, Path: ClientPath(peer), Value: value}, nil
}

// SetDevicesOp builds the operation replacing a client's device list.
func SetDevicesOp(peer uint16, infos []device.Info) (Op, error) {
	if infos == nil {
		infos = []device.Info{}
	}
	value, err := json.Marshal(infos)
	if err != nil {
		return Op{}, err
	}
	return Op{Op: OpReplace, Path: ClientPath(peer) + "/devices", Value: value}, nil
}

func RemoveClientOp(peer uint16) Op {
	return Op{Op: OpRemove, Path: ClientPath(peer)}
}

// SetDevices replaces a client's device list. The client must already be
// present; the relay adds clients before announcing their devices.
func (t *Tree) SetDevices(peer uint16, infos []device.Info) error {
	op, err := SetDevicesOp(peer, infos)
	if err != nil {
		return err
	}
	err = t.ApplyOps([]Op{op})
	if errors.Is(err, ErrPathNotFound) {
		return fmt.Errorf("%w: %d", ErrUnknownClient, peer)
	}
	return err
}

// AddClient inserts or replaces a client entry.
func (t *Tree) AddClient(peer uint16, c Client) error {
	op, err := AddClientOp(peer, c)
	if err != nil {
		return err
	}
	return t.ApplyOps([]Op{op})
}

// RemoveClients drops every listed client that exists and returns how many
// were removed.
func (t *Tree) RemoveClients(ids []int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	root, ok := t.doc.(map[string]any)
	if !ok {
		return 0
	}
	clients, ok := root["clients"].(map[string]any)
	if !ok {
		return 0
	}
	removed := 0
	for _, id := range ids {
		key := strconv.Itoa(id)
		if _, ok := clients[key]; ok {
			delete(clients, key)
			removed++
		}
	}
	if removed > 0 {
		t.version++
	}
	return removed
}
