package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/xrsync/internal/device"
)

// ProtocolVersion is shared by client and relay. Any mismatch during the
// handshake ends the session.
const ProtocolVersion = 7

// Action is the discriminant of a control message.
type Action string

const (
	ActionRequestID      Action = "gimme id"
	ActionReclaimID      Action = "i already has id"
	ActionIDIssued       Action = "id's here"
	ActionIDAck          Action = "id ack"
	ActionDeviceInfo     Action = "device info"
	ActionPatch          Action = "patch"
	ActionFullStateReset Action = "full state reset"
	ActionDisconnect     Action = "disconnect"
	ActionHaptic         Action = "haptic"
	ActionError          Action = "error"
	ActionKeepalive      Action = "keepalive"
)

var (
	ErrInvalidMessage = errors.New("session: invalid control message")
	ErrMissingAction  = errors.New("session: control message missing action")
)

// HapticRequest asks the relay to forward one impulse to a peer's device.
type HapticRequest struct {
	Channel   uint32  `json:"channel"`
	Amplitude float32 `json:"amplitude"`
	Duration  float32 `json:"duration"`
}

// Message is one JSON control message. Which fields are meaningful depends
// on Action.
type Message struct {
	Action          Action          `json:"action,omitempty"`
	ProtocolVersion int             `json:"protocolVersion,omitempty"`
	IntValue        int             `json:"intValue,omitempty"`
	StringValue     string          `json:"stringValue,omitempty"`
	ID              *int            `json:"id,omitempty"`
	Token           string          `json:"token,omitempty"`
	Info            []device.Info   `json:"info,omitempty"`
	Patches         json.RawMessage `json:"patches,omitempty"`
	State           json.RawMessage `json:"state,omitempty"`
	IDs             []int           `json:"ids,omitempty"`
	Error           string          `json:"error,omitempty"`
	Haptic          *HapticRequest  `json:"haptic,omitempty"`
}

// PeerID returns the id field, falling back to intValue for relays that
// send the issued id there.
func (m Message) PeerID() (int, bool) {
	if m.ID != nil {
		return *m.ID, true
	}
	if m.Action == ActionIDIssued && m.IntValue != 0 {
		return m.IntValue, true
	}
	return 0, false
}

// IssuedToken returns token, falling back to stringValue.
func (m Message) IssuedToken() string {
	if t := strings.TrimSpace(m.Token); t != "" {
		return t
	}
	return strings.TrimSpace(m.StringValue)
}

func Encode(m Message) ([]byte, error) {
	if strings.TrimSpace(string(m.Action)) == "" && m.Error == "" {
		return nil, ErrMissingAction
	}
	return json.Marshal(m)
}

// Decode parses a control message. An empty action is allowed when the
// message carries an error.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	m.Action = Action(strings.TrimSpace(string(m.Action)))
	if m.Action == "" && m.Error == "" {
		return Message{}, ErrMissingAction
	}
	return m, nil
}

func intPtr(v int) *int {
	return &v
}

func HelloNew() Message {
	return Message{Action: ActionRequestID, ProtocolVersion: ProtocolVersion}
}

func HelloKnown(peerID uint16, token string) Message {
	return Message{
		Action:          ActionReclaimID,
		ProtocolVersion: ProtocolVersion,
		ID:              intPtr(int(peerID)),
		Token:           token,
	}
}

func IDIssued(peerID uint16, token string) Message {
	return Message{
		Action:          ActionIDIssued,
		ProtocolVersion: ProtocolVersion,
		ID:              intPtr(int(peerID)),
		Token:           token,
	}
}

func IDAck() Message {
	return Message{Action: ActionIDAck, ProtocolVersion: ProtocolVersion}
}

// DeviceInfoMessage announces the sender's devices. peerID is set by the
// relay when it rebroadcasts; clients leave it nil.
func DeviceInfoMessage(peerID *int, infos []device.Info) Message {
	if infos == nil {
		infos = []device.Info{}
	}
	return Message{Action: ActionDeviceInfo, ID: peerID, Info: infos}
}

func PatchMessage(ops json.RawMessage) Message {
	return Message{Action: ActionPatch, Patches: ops}
}

func FullStateReset(state json.RawMessage) Message {
	return Message{Action: ActionFullStateReset, State: state}
}

func DisconnectMessage(ids []int) Message {
	return Message{Action: ActionDisconnect, IDs: ids}
}

func HapticMessage(peerID uint16, deviceID uint32, req HapticRequest) Message {
	return Message{
		Action:   ActionHaptic,
		ID:       intPtr(int(peerID)),
		IntValue: int(deviceID),
		Haptic:   &req,
	}
}

func ErrorReport(err error) Message {
	return Message{Action: ActionError, Error: err.Error()}
}

func Keepalive() Message {
	return Message{Action: ActionKeepalive}
}

// KeepalivePayload is the encoded keepalive, ready for the transport.
func KeepalivePayload() []byte {
	b, _ := Encode(Keepalive())
	return b
}
