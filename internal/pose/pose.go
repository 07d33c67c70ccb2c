// Package pose holds the rigid-transform math shared by device state and the
// remote view reconciler.
//
// Euler angles follow the Z, X, Y application order used by the device
// runtimes feeding this client, and are always radians.
package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Vector is the JSON shape of a position or scale.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vector) R3() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func VectorFrom(v r3.Vec) Vector {
	return Vector{X: v.X, Y: v.Y, Z: v.Z}
}

// Quaternion is the JSON shape of a rotation. The zero value reads as identity.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

func (q Quaternion) Number() quat.Number {
	n := quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
	return Normalize(n)
}

func QuaternionFrom(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Transform is a peer-wide calibration applied on top of device poses.
// A zero scale reads as unit scale.
type Transform struct {
	Position Vector     `json:"position"`
	Rotation Quaternion `json:"rotation"`
	Scale    Vector     `json:"scale"`
}

// Pose is a position and orientation in one space.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

func IdentityRotation() quat.Number {
	return quat.Number{Real: 1}
}

func IdentityPose() Pose {
	return Pose{Rotation: IdentityRotation()}
}

func IdentityTransform() Transform {
	return Transform{
		Rotation: Quaternion{W: 1},
		Scale:    Vector{X: 1, Y: 1, Z: 1},
	}
}

// Apply maps p from device space into the calibrated session space.
func (t Transform) Apply(p Pose) Pose {
	rot := t.Rotation.Number()
	scale := t.Scale
	if scale == (Vector{}) {
		scale = Vector{X: 1, Y: 1, Z: 1}
	}
	scaled := r3.Vec{
		X: p.Position.X * scale.X,
		Y: p.Position.Y * scale.Y,
		Z: p.Position.Z * scale.Z,
	}
	return Pose{
		Position: r3.Add(Rotate(rot, scaled), t.Position.R3()),
		Rotation: Normalize(quat.Mul(rot, Normalize(p.Rotation))),
	}
}

// Normalize returns q scaled to unit length; zero becomes identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return IdentityRotation()
	}
	return quat.Scale(1/n, q)
}

// Rotate applies the unit quaternion q to v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}
