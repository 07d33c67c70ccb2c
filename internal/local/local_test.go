package local

import (
	"sync"
	"testing"
	"time"

	"github.com/danmuck/xrsync/internal/device"
	"github.com/danmuck/xrsync/internal/device/sim"
	"github.com/danmuck/xrsync/internal/identity"
	"github.com/danmuck/xrsync/internal/protocol"
	"github.com/danmuck/xrsync/internal/protocol/session"
	"github.com/danmuck/xrsync/internal/testutil/testlog"
)

func fixedClock() func() time.Time {
	at := time.Unix(1000, 0)
	return func() time.Time { return at }
}

func TestAddDeviceAssignsIncreasingIDs(t *testing.T) {
	testlog.Start(t)
	a := NewAggregator()
	d1 := a.AddDevice(sim.NewWithClock(sim.Config{Role: sim.RoleHead}, fixedClock()))
	d2 := a.AddDevice(sim.NewWithClock(sim.Config{Role: sim.RoleLeftHand}, fixedClock()))
	if d1.ID() != 1 || d2.ID() != 2 {
		t.Fatalf("ids=%d,%d", d1.ID(), d2.ID())
	}
	if !d1.State.HasData || !d1.State.DeviceInfoChanged {
		t.Fatalf("schema should be established on add")
	}
	if !a.RemoveDevice(1) || a.RemoveDevice(1) {
		t.Fatalf("remove should succeed exactly once")
	}
	d3 := a.AddDevice(sim.NewWithClock(sim.Config{}, fixedClock()))
	if d3.ID() != 3 {
		t.Fatalf("ids must not be reused, got %d", d3.ID())
	}
}

func TestBuildFrameLayout(t *testing.T) {
	testlog.Start(t)
	a := NewAggregator()
	a.SetIdentity(identity.Identity{PeerID: 9, Token: "t"})
	a.AddDevice(sim.NewWithClock(sim.Config{Role: sim.RoleRightHand}, fixedClock()))
	absent := sim.NewWithClock(sim.Config{Role: sim.RoleLeftHand}, fixedClock())
	absent.SetPresent(false)
	a.AddDevice(absent)
	a.Tick()

	frame, err := a.BuildFrame()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if frame[0] != byte(protocol.FrameState) {
		t.Fatalf("type=%d", frame[0])
	}
	var ids []uint32
	peer, err := session.ParseUpload(frame, func(_ int32, id uint32, block []byte) error {
		ids = append(ids, id)
		remote := device.NewStateWithSchema(id, device.BuildSchema(sim.New(sim.Config{}).Usages()))
		_, err := remote.DeSerializeData(block, 0)
		return err
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if peer != 9 || len(ids) != 1 || ids[0] != 1 {
		t.Fatalf("peer=%d ids=%v", peer, ids)
	}
}

func TestDeviceInfoAnnouncedOnceAndAfterChanges(t *testing.T) {
	testlog.Start(t)
	a := NewAggregator()
	src := sim.NewWithClock(sim.Config{Role: sim.RoleRightHand, Haptics: true}, fixedClock())
	a.AddDevice(src)

	msg, ok := a.BuildDeviceInfo()
	if !ok || msg.Action != session.ActionDeviceInfo || len(msg.Info) != 1 {
		t.Fatalf("first announce ok=%v msg=%+v", ok, msg)
	}
	if !msg.Info[0].Haptics || msg.Info[0].Locations[device.UsageTrigger] != 1 {
		t.Fatalf("info=%+v", msg.Info[0])
	}
	a.Tick()
	if _, ok := a.BuildDeviceInfo(); ok {
		t.Fatalf("unchanged devices must not re-announce")
	}

	a.MarkAllChanged()
	if _, ok := a.BuildDeviceInfo(); !ok {
		t.Fatalf("forced announce missing")
	}

	src.SetPresent(false)
	a.Tick()
	msg, ok = a.BuildDeviceInfo()
	if !ok || len(msg.Info) != 0 {
		t.Fatalf("vanished device should re-announce an empty list, ok=%v info=%+v", ok, msg.Info)
	}
}

func TestDispatchHaptic(t *testing.T) {
	testlog.Start(t)
	a := NewAggregator()
	src := sim.NewWithClock(sim.Config{Role: sim.RoleLeftHand, Haptics: true}, fixedClock())
	d := a.AddDevice(src)

	if !a.DispatchHaptic(d.ID(), 1, 0.7, 0.2) {
		t.Fatalf("dispatch to known device failed")
	}
	if a.DispatchHaptic(42, 1, 0.7, 0.2) {
		t.Fatalf("dispatch to unknown device must be ignored")
	}
	got := src.Impulses()
	if len(got) != 1 || got[0].Amplitude != 0.7 || got[0].Duration != 0.2 {
		t.Fatalf("impulses=%+v", got)
	}
}

func TestSummariesCopyUnderLock(t *testing.T) {
	testlog.Start(t)
	a := NewAggregator()
	head := a.AddDevice(sim.NewWithClock(sim.Config{Role: sim.RoleHead}, fixedClock()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			a.Tick()
		}
	}()
	for i := 0; i < 200; i++ {
		got := a.Summaries()
		if len(got) != 1 || got[0].ID != head.ID() || !got[0].HasData {
			wg.Wait()
			t.Fatalf("summaries=%+v", got)
		}
	}
	wg.Wait()
	if got := a.Summaries(); got[0].Name != head.Name() {
		t.Fatalf("name=%q want=%q", got[0].Name, head.Name())
	}
}
