package pose

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func near(a, b r3.Vec, tol float64) bool {
	return math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestEulerRoundTrip(t *testing.T) {
	cases := []r3.Vec{
		{},
		{X: 0.3},
		{Y: -1.2},
		{Z: 2.5},
		{X: 0.4, Y: 1.1, Z: -0.7},
		{X: -1.2, Y: -2.9, Z: 3.0},
	}
	for _, e := range cases {
		q := FromEuler(e)
		back := ToEuler(q)
		if !SameRotation(q, FromEuler(back), 1e-9) {
			t.Fatalf("euler=%+v back=%+v differs", e, back)
		}
	}
}

func TestFromEulerSingleAxis(t *testing.T) {
	q := FromEuler(r3.Vec{Y: math.Pi / 2})
	got := Rotate(q, r3.Vec{Z: 1})
	if !near(got, r3.Vec{X: 1}, 1e-9) {
		t.Fatalf("yaw 90 should map +z to +x, got %+v", got)
	}
}

func TestToEulerGimbalLock(t *testing.T) {
	e := r3.Vec{X: math.Pi / 2, Y: 0.5, Z: 0}
	q := FromEuler(e)
	if !SameRotation(q, FromEuler(ToEuler(q)), 1e-6) {
		t.Fatalf("gimbal decomposition lost rotation")
	}
}

func TestEulerRoundTripNearPoles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20000; i++ {
		pole := math.Pi / 2
		if i%2 == 1 {
			pole = -pole
		}
		e := r3.Vec{
			X: pole + (rng.Float64()*2-1)*2e-3,
			Y: (rng.Float64()*2 - 1) * math.Pi,
			Z: (rng.Float64()*2 - 1) * math.Pi,
		}
		q := FromEuler(e)
		back := FromEuler(ToEuler(q))
		if !SameRotation(q, back, 1e-12) {
			t.Fatalf("euler=%+v back=%+v drifted", e, ToEuler(q))
		}
	}
}

func TestTransformApply(t *testing.T) {
	cal := Transform{
		Position: Vector{X: 1, Y: 2, Z: 3},
		Rotation: QuaternionFrom(FromEuler(r3.Vec{Y: math.Pi / 2})),
		Scale:    Vector{X: 2, Y: 2, Z: 2},
	}
	out := cal.Apply(Pose{Position: r3.Vec{Z: 1}, Rotation: IdentityRotation()})
	if !near(out.Position, r3.Vec{X: 3, Y: 2, Z: 3}, 1e-9) {
		t.Fatalf("unexpected position: %+v", out.Position)
	}
	if !SameRotation(out.Rotation, cal.Rotation.Number(), 1e-9) {
		t.Fatalf("unexpected rotation: %+v", out.Rotation)
	}
}

func TestZeroTransformIsIdentity(t *testing.T) {
	in := Pose{Position: r3.Vec{X: 1, Y: -1, Z: 0.5}, Rotation: FromEuler(r3.Vec{X: 0.2})}
	out := Transform{}.Apply(in)
	if !near(out.Position, in.Position, 1e-12) || !SameRotation(out.Rotation, in.Rotation, 1e-12) {
		t.Fatalf("zero transform changed pose: %+v", out)
	}
	if IdentityTransform().Apply(in).Position != out.Position {
		t.Fatalf("identity transform differs from zero transform")
	}
}

func TestNormalizeZero(t *testing.T) {
	if got := Normalize(quat.Number{}); got != IdentityRotation() {
		t.Fatalf("zero quaternion should normalize to identity, got %+v", got)
	}
}

func TestTransformJSONShape(t *testing.T) {
	var tr Transform
	raw := `{"position":{"x":1,"y":2,"z":3},"rotation":{"x":0,"y":0,"z":0,"w":1},"scale":{"x":1,"y":1,"z":1}}`
	if err := json.Unmarshal([]byte(raw), &tr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if tr.Position.Z != 3 || tr.Rotation.W != 1 {
		t.Fatalf("unexpected transform: %+v", tr)
	}
	out, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != raw {
		t.Fatalf("unexpected json: %s", out)
	}
}
