// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation holds the rotation and rigid-transform types shared by
// the inertial sources, the calibration gate and the estimator.
package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

const (
	radToDeg = 180.0 / math.Pi
	degToRad = math.Pi / 180.0
)

// Euler is roll/pitch/yaw in degrees, the form consoles and displays print.
type Euler struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// TiltEuler computes roll and pitch from accelerometer data only.
// Yaw is unobservable from gravity and left at 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func TiltEuler(ax, ay, az float64) Euler {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Euler{
		Roll:  rollRad * radToDeg,
		Pitch: pitchRad * radToDeg,
		Yaw:   0,
	}
}

// TiltQuaternion is TiltEuler expressed as a unit quaternion.
func TiltQuaternion(ax, ay, az float64) quat.Number {
	return EulerToQuat(TiltEuler(ax, ay, az))
}

// EulerToQuat converts ZYX (yaw, pitch, roll) angles in degrees to a unit
// quaternion.
func EulerToQuat(e Euler) quat.Number {
	cr, sr := math.Cos(e.Roll*degToRad/2), math.Sin(e.Roll*degToRad/2)
	cp, sp := math.Cos(e.Pitch*degToRad/2), math.Sin(e.Pitch*degToRad/2)
	cy, sy := math.Cos(e.Yaw*degToRad/2), math.Sin(e.Yaw*degToRad/2)

	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// QuatToEuler converts a rotation quaternion to ZYX angles in degrees.
// Pitch is clamped at ±90° near gimbal lock.
func QuatToEuler(q quat.Number) Euler {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	var pitch float64
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return Euler{
		Roll:  roll * radToDeg,
		Pitch: pitch * radToDeg,
		Yaw:   yaw * radToDeg,
	}
}

// Normalize scales q to unit length. The zero quaternion maps to identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// IntegrateGyro advances q by the body rates omega (rad/s) over dt seconds.
func IntegrateGyro(q quat.Number, wx, wy, wz, dt float64) quat.Number {
	angle := math.Sqrt(wx*wx+wy*wy+wz*wz) * dt
	if angle == 0 {
		return q
	}
	s := math.Sin(angle/2) / (angle / dt)
	delta := quat.Number{
		Real: math.Cos(angle / 2),
		Imag: wx * s,
		Jmag: wy * s,
		Kmag: wz * s,
	}
	return Normalize(quat.Mul(q, delta))
}
