// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Transform is a rigid 3x4 transform: rotation R followed by translation T.
// The zero value is the identity.
type Transform struct {
	r *mat.Dense
	t r3.Vector
}

// NewTransform builds a transform from its row-major 3x4 matrix.
func NewTransform(
	r11, r12, r13, tx,
	r21, r22, r23, ty,
	r31, r32, r33, tz float64,
) Transform {
	return Transform{
		r: mat.NewDense(3, 3, []float64{
			r11, r12, r13,
			r21, r22, r23,
			r31, r32, r33,
		}),
		t: r3.Vector{X: tx, Y: ty, Z: tz},
	}
}

// Identity returns the identity transform.
func Identity() Transform {
	return NewTransform(
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	)
}

// TransformFromQuat builds a transform from a rotation and a translation.
func TransformFromQuat(q quat.Number, t r3.Vector) Transform {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return NewTransform(
		1-2*(y*y+z*z), 2*(x*y-z*w), 2*(x*z+y*w), t.X,
		2*(x*y+z*w), 1-2*(x*x+z*z), 2*(y*z-x*w), t.Y,
		2*(x*z-y*w), 2*(y*z+x*w), 1-2*(x*x+y*y), t.Z,
	)
}

func (t Transform) rot() *mat.Dense {
	if t.r == nil {
		return Identity().r
	}
	return t.r
}

// Translation returns the translation part.
func (t Transform) Translation() r3.Vector {
	return t.t
}

// At returns the rotation element at row i, column j.
func (t Transform) At(i, j int) float64 {
	return t.rot().At(i, j)
}

// Mul composes t with o, so that t.Mul(o).Apply(v) == t.Apply(o.Apply(v)).
func (t Transform) Mul(o Transform) Transform {
	var r mat.Dense
	r.Mul(t.rot(), o.rot())
	return Transform{r: &r, t: t.Rotate(o.t).Add(t.t)}
}

// Rotate applies only the rotation part to v.
func (t Transform) Rotate(v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(t.rot(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Apply maps the point v through the transform.
func (t Transform) Apply(v r3.Vector) r3.Vector {
	return t.Rotate(v).Add(t.t)
}

// Inverse returns the inverse rigid transform.
func (t Transform) Inverse() Transform {
	var rt mat.Dense
	rt.CloneFrom(t.rot().T())
	inv := Transform{r: &rt}
	inv.t = inv.Rotate(t.t).Mul(-1)
	return inv
}

// Quaternion returns the rotation part as a unit quaternion.
func (t Transform) Quaternion() quat.Number {
	m := t.rot()
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	trace := m00 + m11 + m22

	var q quat.Number
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = quat.Number{
			Real: 0.25 / s,
			Imag: (m.At(2, 1) - m.At(1, 2)) * s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) * s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) * s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}
	return Normalize(q)
}

// ApproxEqual compares rotation and translation element-wise within tol.
func (t Transform) ApproxEqual(o Transform, tol float64) bool {
	if !mat.EqualApprox(t.rot(), o.rot(), tol) {
		return false
	}
	d := t.t.Sub(o.t)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}

// String prints the 3x4 matrix on one line.
func (t Transform) String() string {
	m := t.rot()
	return fmt.Sprintf("[%g %g %g %g; %g %g %g %g; %g %g %g %g]",
		m.At(0, 0), m.At(0, 1), m.At(0, 2), t.t.X,
		m.At(1, 0), m.At(1, 1), m.At(1, 2), t.t.Y,
		m.At(2, 0), m.At(2, 1), m.At(2, 2), t.t.Z,
	)
}
