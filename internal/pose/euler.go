package pose

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// gimbalEpsilon bounds |cos(x)| below which Y and Z share an axis.
const gimbalEpsilon = 1e-12

func axisAngle(angle float64, axis r3.Vec) quat.Number {
	s, c := math.Sincos(angle / 2)
	return quat.Number{Real: c, Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}

// FromEuler builds a rotation from Euler radians (x, y, z) applied Z, then X,
// then Y.
func FromEuler(e r3.Vec) quat.Number {
	qx := axisAngle(e.X, r3.Vec{X: 1})
	qy := axisAngle(e.Y, r3.Vec{Y: 1})
	qz := axisAngle(e.Z, r3.Vec{Z: 1})
	return Normalize(quat.Mul(quat.Mul(qy, qx), qz))
}

// ToEuler decomposes q into Euler radians matching FromEuler.
func ToEuler(q quat.Number) r3.Vec {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	m12 := 2 * (y*z - w*x)
	m02 := 2 * (x*z + w*y)
	m22 := 1 - 2*(x*x+y*y)
	cosX := math.Hypot(m02, m22)
	ex := math.Atan2(-m12, cosX)

	if cosX < gimbalEpsilon {
		// Gimbal lock: fold everything into Y.
		m00 := 1 - 2*(y*y+z*z)
		m20 := 2 * (x*z - w*y)
		return r3.Vec{X: ex, Y: math.Atan2(-m20, m00), Z: 0}
	}

	m10 := 2 * (x*y + w*z)
	m11 := 1 - 2*(x*x+z*z)
	return r3.Vec{
		X: ex,
		Y: math.Atan2(m02, m22),
		Z: math.Atan2(m10, m11),
	}
}

// SameRotation reports whether a and b describe the same orientation within
// tol, treating q and -q as equal.
func SameRotation(a, b quat.Number, tol float64) bool {
	a, b = Normalize(a), Normalize(b)
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	return 1-math.Abs(dot) <= tol
}
