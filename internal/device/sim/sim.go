// Package sim provides a deterministic simulated device for running a client
// without hardware.
package sim

import (
	"math"
	"sync"
	"time"

	"github.com/danmuck/xrsync/internal/device"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/pose"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Role picks the usage set a simulated device exposes.
type Role string

const (
	RoleHead      Role = "head"
	RoleLeftHand  Role = "left"
	RoleRightHand Role = "right"
)

const defaultPeriod = 4 * time.Second

type Config struct {
	Name    string
	Role    Role
	Haptics bool
	// Period is the length of one motion loop.
	Period time.Duration
	// Offset shifts the device in space so several sims do not overlap.
	Offset r3.Vec
}

// Impulse is one haptic request a sim device received.
type Impulse struct {
	Channel   uint32
	Amplitude float32
	Duration  float32
}

// Device implements device.Source. Values are a pure function of the time
// elapsed since construction.
type Device struct {
	cfg   Config
	now   func() time.Time
	start time.Time

	mu       sync.Mutex
	impulses []Impulse
	present  bool
}

var _ device.Source = (*Device)(nil)

func New(cfg Config) *Device {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock is New with an injectable clock.
func NewWithClock(cfg Config, now func() time.Time) *Device {
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Role == "" {
		cfg.Role = RoleRightHand
	}
	if cfg.Name == "" {
		cfg.Name = "Simulated " + string(cfg.Role)
	}
	return &Device{cfg: cfg, now: now, start: now(), present: true}
}

// SetPresent simulates the device being unplugged or reconnected.
func (d *Device) SetPresent(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.present = v
}

func (d *Device) Name() string {
	return d.cfg.Name
}

func (d *Device) Characteristics() device.Characteristics {
	c := device.CharTrackedDevice | device.CharSimulated6DOF
	switch d.cfg.Role {
	case RoleHead:
		c |= device.CharHeadMounted
	case RoleLeftHand:
		c |= device.CharHeldInHand | device.CharController | device.CharLeft
	default:
		c |= device.CharHeldInHand | device.CharController | device.CharRight
	}
	return c
}

func (d *Device) SupportsHaptics() bool {
	return d.cfg.Haptics && d.cfg.Role != RoleHead
}

func (d *Device) Usages() []device.Usage {
	d.mu.Lock()
	present := d.present
	d.mu.Unlock()
	if !present {
		return nil
	}
	usages := []device.Usage{
		{Name: device.UsageDevicePosition, Kind: device.KindVector3},
		{Name: device.UsageDeviceRotation, Kind: device.KindQuaternion},
		{Name: device.UsageIsTracked, Kind: device.KindBool},
		{Name: device.UsageTrackingState, Kind: device.KindUint},
		{Name: device.UsageBatteryLevel, Kind: device.KindFloat},
	}
	if d.cfg.Role == RoleHead {
		return append(usages,
			device.Usage{Name: device.UsageCenterEyePosition, Kind: device.KindVector3},
			device.Usage{Name: device.UsageCenterEyeRotation, Kind: device.KindQuaternion},
			device.Usage{Name: device.UsageUserPresence, Kind: device.KindBool},
		)
	}
	return append(usages,
		device.Usage{Name: device.UsageTrigger, Kind: device.KindFloat},
		device.Usage{Name: device.UsageGrip, Kind: device.KindFloat},
		device.Usage{Name: device.UsageTriggerButton, Kind: device.KindBool},
		device.Usage{Name: device.UsagePrimaryButton, Kind: device.KindBool},
		device.Usage{Name: device.UsagePrimary2DAxis, Kind: device.KindVector2},
	)
}

// phase returns the loop position in [0, 2π).
func (d *Device) phase() float64 {
	elapsed := d.now().Sub(d.start)
	frac := float64(elapsed%d.cfg.Period) / float64(d.cfg.Period)
	return 2 * math.Pi * frac
}

func (d *Device) TryGetQuaternion(name string) (quat.Number, bool) {
	switch name {
	case device.UsageDeviceRotation, device.UsageCenterEyeRotation:
		p := d.phase()
		return pose.FromEuler(r3.Vec{X: 0.2 * math.Sin(p), Y: 0.6 * math.Sin(p/2), Z: 0.1 * math.Cos(p)}), true
	}
	return quat.Number{}, false
}

func (d *Device) TryGetVector3(name string) (r3.Vec, bool) {
	switch name {
	case device.UsageDevicePosition, device.UsageCenterEyePosition:
		p := d.phase()
		base := r3.Vec{X: 0.25 * math.Cos(p), Y: 1.2 + 0.05*math.Sin(2*p), Z: 0.25 * math.Sin(p)}
		if d.cfg.Role == RoleHead {
			base.Y = 1.7
		}
		return r3.Add(base, d.cfg.Offset), true
	}
	return r3.Vec{}, false
}

func (d *Device) TryGetVector2(name string) (r2.Vec, bool) {
	if name != device.UsagePrimary2DAxis {
		return r2.Vec{}, false
	}
	p := d.phase()
	return r2.Vec{X: math.Cos(p), Y: math.Sin(p)}, true
}

func (d *Device) TryGetFloat(name string) (float32, bool) {
	p := d.phase()
	switch name {
	case device.UsageTrigger:
		return float32(0.5 + 0.5*math.Sin(p)), true
	case device.UsageGrip:
		return float32(0.5 + 0.5*math.Cos(p)), true
	case device.UsageBatteryLevel:
		return 0.8, true
	}
	return 0, false
}

func (d *Device) TryGetBool(name string) (bool, bool) {
	switch name {
	case device.UsageIsTracked, device.UsageUserPresence:
		return true, true
	case device.UsageTriggerButton:
		return math.Sin(d.phase()) > 0.8, true
	case device.UsagePrimaryButton:
		return d.phase() < math.Pi/8, true
	}
	return false, false
}

func (d *Device) TryGetUint(name string) (uint32, bool) {
	if name == device.UsageTrackingState {
		// position | rotation
		return 0b11, true
	}
	return 0, false
}

func (d *Device) SendHapticImpulse(channel uint32, amplitude, duration float32) bool {
	if !d.SupportsHaptics() {
		return false
	}
	d.mu.Lock()
	d.impulses = append(d.impulses, Impulse{Channel: channel, Amplitude: amplitude, Duration: duration})
	d.mu.Unlock()
	logs.Infof("sim.Device.SendHapticImpulse name=%q channel=%d amplitude=%.2f duration=%.2f", d.cfg.Name, channel, amplitude, duration)
	return true
}

// Impulses returns every impulse received so far.
func (d *Device) Impulses() []Impulse {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Impulse(nil), d.impulses...)
}
