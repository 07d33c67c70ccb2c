// Package local owns this peer's identity and its local devices, and builds
// the periodic upload frame and device-info announcements.
package local

import (
	"slices"
	"sync"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/identity"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/pose"
	"github.com/danmuck/xrsync/internal/protocol/session"
)

// Device pairs a local source with its state store.
type Device struct {
	State  *device.State
	Source device.Source

	name     string
	chars    device.Characteristics
	haptics  bool
	usages   []device.Usage
	observed bool
}

func (d *Device) ID() uint32 {
	return d.State.ID
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) info() device.Info {
	return device.InfoFor(d.State, d.name, d.chars, d.haptics)
}

// refreshIdentity rebuilds the schema when the source's persistent identity
// changed. It never runs the schema builder for an unchanged source.
func (d *Device) refreshIdentity() {
	usages := d.Source.Usages()
	name := d.Source.Name()
	chars := d.Source.Characteristics()
	haptics := d.Source.SupportsHaptics()

	if len(usages) == 0 {
		if d.State.HasData {
			logs.Infof("local.Device.refreshIdentity device=%d name=%q gone", d.ID(), d.name)
			d.State.Clear()
			d.State.DeviceInfoChanged = true
		}
		d.observed = false
		return
	}

	if d.observed && name == d.name && chars == d.chars && haptics == d.haptics && slices.Equal(usages, d.usages) {
		return
	}
	identityOnly := d.observed && slices.Equal(usages, d.usages)
	d.name, d.chars, d.haptics = name, chars, haptics
	d.usages = slices.Clone(usages)
	d.observed = true

	if identityOnly {
		d.State.DeviceInfoChanged = true
		return
	}
	schema := device.BuildSchema(usages)
	d.State.HasData = false
	d.State.Establish(schema)
	logs.Debugf(
		"local.Device.refreshIdentity device=%d name=%q lengths=%v unknown=%d",
		d.ID(), name, schema.Lengths(), schema.Unknown(),
	)
}

// Aggregator is the local half of the session state.
type Aggregator struct {
	mu          sync.Mutex
	identity    identity.Identity
	devices     []*Device
	nextID      uint32
	calibration pose.Transform
	initialized bool
	announce    bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		nextID:      1,
		calibration: pose.IdentityTransform(),
	}
}

// AddDevice registers src under the next local device id.
func (a *Aggregator) AddDevice(src device.Source) *Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	d := &Device{State: device.NewState(a.nextID), Source: src}
	a.nextID++
	d.refreshIdentity()
	a.devices = append(a.devices, d)
	logs.Infof("local.Aggregator.AddDevice device=%d name=%q", d.ID(), d.name)
	return d
}

// RemoveDevice drops a device and schedules a re-announcement.
func (a *Aggregator) RemoveDevice(id uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, d := range a.devices {
		if d.ID() == id {
			a.devices = append(a.devices[:i], a.devices[i+1:]...)
			a.announce = true
			logs.Infof("local.Aggregator.RemoveDevice device=%d", id)
			return true
		}
	}
	return false
}

func (a *Aggregator) Device(id uint32) (*Device, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deviceLocked(id)
}

func (a *Aggregator) deviceLocked(id uint32) (*Device, bool) {
	for _, d := range a.devices {
		if d.ID() == id {
			return d, true
		}
	}
	return nil, false
}

// Devices returns the current devices in registration order.
func (a *Aggregator) Devices() []*Device {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.devices)
}

// Summary is a copy of one device's operator-facing fields.
type Summary struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	HasData bool   `json:"hasData"`
}

// Summaries copies each device's fields under the lock Tick writes them
// under.
func (a *Aggregator) Summaries() []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Summary, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, Summary{ID: d.State.ID, Name: d.name, HasData: d.State.HasData})
	}
	return out
}

func (a *Aggregator) Identity() identity.Identity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

func (a *Aggregator) SetIdentity(id identity.Identity) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.identity = id
}

func (a *Aggregator) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

func (a *Aggregator) SetInitialized(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = v
}

func (a *Aggregator) Calibration() pose.Transform {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibration
}

func (a *Aggregator) SetCalibration(t pose.Transform) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calibration = t
}

// Tick refreshes each device's identity, then pulls fresh values for every
// device that has a schema.
func (a *Aggregator) Tick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, d := range a.devices {
		d.refreshIdentity()
		if d.State.HasData {
			d.State.Refresh(d.Source)
		}
	}
}

// BuildFrame serializes [type=1][i32 selfPeerId][varint count][blocks] for
// every device with data.
func (a *Aggregator) BuildFrame() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	count, size := 0, 0
	for _, d := range a.devices {
		if d.State.HasData {
			count++
			size += d.State.CalculateSerializationSize(false)
		}
	}
	frame := make([]byte, 0, 1+4+5+size)
	frame = session.AppendUploadHeader(frame, int32(a.identity.PeerID), count)
	for _, d := range a.devices {
		if !d.State.HasData {
			continue
		}
		var err error
		if frame, err = d.State.AppendData(frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// BuildDeviceInfo returns a device info message when any device changed
// since the last announcement, clearing the change flags.
func (a *Aggregator) BuildDeviceInfo() (session.Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := a.announce
	for _, d := range a.devices {
		changed = changed || d.State.DeviceInfoChanged
	}
	if !changed {
		return session.Message{}, false
	}
	infos := make([]device.Info, 0, len(a.devices))
	for _, d := range a.devices {
		d.State.DeviceInfoChanged = false
		if d.State.HasData {
			infos = append(infos, d.info())
		}
	}
	a.announce = false
	return session.DeviceInfoMessage(nil, infos), true
}

// MarkAllChanged forces the next BuildDeviceInfo to announce, e.g. right
// after a handshake.
func (a *Aggregator) MarkAllChanged() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announce = true
}

// DispatchHaptic sends one impulse to a local device. Unknown devices and
// devices without haptics are ignored.
func (a *Aggregator) DispatchHaptic(deviceID uint32, channel uint32, amplitude, duration float32) bool {
	a.mu.Lock()
	d, ok := a.deviceLocked(deviceID)
	a.mu.Unlock()
	if !ok {
		logs.Debugf("local.Aggregator.DispatchHaptic unknown device=%d", deviceID)
		return false
	}
	if !d.Source.SupportsHaptics() {
		return false
	}
	return d.Source.SendHapticImpulse(channel, amplitude, duration)
}
