package device

import (
	"errors"
	"testing"

	"github.com/danmuck/xrsync/internal/testutil/testlog"
)

func controllerUsages() []Usage {
	return []Usage{
		{Name: UsageDevicePosition, Kind: KindVector3},
		{Name: UsageDeviceRotation, Kind: KindQuaternion},
		{Name: UsageTriggerButton, Kind: KindBool},
		{Name: UsagePrimary2DAxis, Kind: KindVector2},
		{Name: "VendorGlow", Kind: KindFloat},
		{Name: UsageTrigger, Kind: KindFloat},
		{Name: UsageDevicePosition, Kind: KindVector3},
		{Name: UsageTrackingState, Kind: KindUint},
		{Name: UsageDeviceVelocity, Kind: KindVector3},
	}
}

func TestBuildSchemaBucketsInDiscoveryOrder(t *testing.T) {
	testlog.Start(t)
	s := BuildSchema(controllerUsages())

	want := [KindCount]int{1, 2, 1, 2, 1, 1}
	if s.Lengths() != want {
		t.Fatalf("lengths=%v want=%v", s.Lengths(), want)
	}
	slot, ok := s.Lookup(UsageDeviceVelocity)
	if !ok || slot.Kind != KindVector3 || slot.Index != 1 {
		t.Fatalf("velocity slot=%+v ok=%v", slot, ok)
	}
	slot, ok = s.Lookup(UsageTrigger)
	if !ok || slot.Index != 1 {
		t.Fatalf("trigger should follow the unknown float, got %+v ok=%v", slot, ok)
	}
	if _, ok := s.Lookup("VendorGlow"); ok {
		t.Fatalf("unknown usage must not be mapped")
	}
	if s.Unknown() != 1 {
		t.Fatalf("unknown=%d", s.Unknown())
	}
	if len(s.Slots()) != 8 {
		t.Fatalf("slots=%d", len(s.Slots()))
	}
}

func TestBuildSchemaKindMismatchNotMapped(t *testing.T) {
	testlog.Start(t)
	s := BuildSchema([]Usage{{Name: UsageDevicePosition, Kind: KindFloat}})
	if s.Len(KindFloat) != 1 {
		t.Fatalf("slot still counted, got %d", s.Len(KindFloat))
	}
	if _, ok := s.Lookup(UsageDevicePosition); ok {
		t.Fatalf("mis-kinded usage must not be mapped")
	}
}

func TestSchemaFromInfoMatchesBuilder(t *testing.T) {
	testlog.Start(t)
	local := BuildSchema(controllerUsages())
	remote := SchemaFromInfo(local.Lengths(), local.Locations())
	if !local.Equal(remote) {
		t.Fatalf("remote schema differs: local=%v remote=%v", local.Locations(), remote.Locations())
	}

	locs := local.Locations()
	locs["Nonsense"] = 0
	locs[UsageGrip] = 9
	remote = SchemaFromInfo(local.Lengths(), locs)
	if _, ok := remote.Lookup(UsageGrip); ok {
		t.Fatalf("out-of-range index must be ignored")
	}
	if remote.Unknown() != 2 {
		t.Fatalf("unknown=%d", remote.Unknown())
	}
}

func TestFallbacksWhenUnavailable(t *testing.T) {
	testlog.Start(t)
	s := NewStateWithSchema(1, BuildSchema([]Usage{{Name: UsageTrigger, Kind: KindFloat}}))

	if lvl, ok := s.BatteryLevel(); ok || lvl != FallbackBatteryLevel {
		t.Fatalf("battery=%v ok=%v", lvl, ok)
	}
	if rot, ok := s.DeviceRotation(); ok || rot.Real != 1 || rot.Imag != 0 {
		t.Fatalf("rotation=%+v ok=%v", rot, ok)
	}
	if pos, ok := s.DevicePosition(); ok || pos.X != 0 || pos.Y != 0 || pos.Z != 0 {
		t.Fatalf("position=%+v ok=%v", pos, ok)
	}
	if v, ok := s.IsTracked(); ok || v {
		t.Fatalf("tracked=%v ok=%v", v, ok)
	}
	if _, ok := s.Float(UsageTrigger); !ok {
		t.Fatalf("trigger should be available")
	}
	if _, ok := NewState(2).Float(UsageTrigger); ok {
		t.Fatalf("state without data has no features")
	}
}

func TestEstablishKeepsSlotsForEqualSchema(t *testing.T) {
	testlog.Start(t)
	schema := BuildSchema(controllerUsages())
	s := NewStateWithSchema(3, schema)
	s.Floats[0] = 0.25
	s.DeviceInfoChanged = false

	if s.Establish(BuildSchema(controllerUsages())) {
		t.Fatalf("equal schema must not reallocate")
	}
	if s.Floats[0] != 0.25 || s.DeviceInfoChanged {
		t.Fatalf("values or flag changed on equal schema")
	}
	if !s.Establish(BuildSchema([]Usage{{Name: UsageGrip, Kind: KindFloat}})) {
		t.Fatalf("new schema must reallocate")
	}
	if len(s.Vector3s) != 0 || len(s.Floats) != 1 || !s.DeviceInfoChanged {
		t.Fatalf("unexpected arrays after re-establish")
	}
}

func TestInfoValidateBoundsLengths(t *testing.T) {
	testlog.Start(t)
	st := NewStateWithSchema(3, BuildSchema(controllerUsages()))
	info := InfoFor(st, "controller", CharController, true)
	if err := info.Validate(); err != nil {
		t.Fatalf("local info rejected: %v", err)
	}

	info.Lengths[KindBool] = MaxSlotsPerKind
	if err := info.Validate(); err != nil {
		t.Fatalf("length at cap rejected: %v", err)
	}
	info.Lengths[KindFloat] = 1_000_000_000
	if err := ValidateInfos([]Info{InfoFor(st, "ok", CharController, false), info}); !errors.Is(err, ErrSchemaTooLarge) {
		t.Fatalf("oversized info err=%v", err)
	}
	info.Lengths[KindFloat] = -1
	if err := info.Validate(); !errors.Is(err, ErrSchemaTooLarge) {
		t.Fatalf("negative length err=%v", err)
	}
}
