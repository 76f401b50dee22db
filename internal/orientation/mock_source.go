// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Gravity is standard gravity in m/s².
const Gravity = 9.80665

// MotionSample is what an IMU rigidly attached to the mock body would read.
type MotionSample struct {
	Accel    r3.Vector   // m/s², body frame, includes gravity
	Gyro     r3.Vector   // rad/s, body frame
	Rotation quat.Number // body to world
}

// MockMotion generates smoothly changing attitude for demos and tests.
type MockMotion struct{}

// EulerAt returns the mock attitude after elapsed seconds.
func (MockMotion) EulerAt(elapsed float64) Euler {
	return Euler{
		Roll:  20 * math.Sin(elapsed),
		Pitch: 15 * math.Cos(elapsed*0.7),
		Yaw:   math.Mod(elapsed*30, 360),
	}
}

// SampleAt returns the accelerometer, gyro and rotation readings at elapsed
// seconds. Body rates are the euler-rate derivative mapped through the ZYX
// kinematics.
func (m MockMotion) SampleAt(elapsed float64) MotionSample {
	e := m.EulerAt(elapsed)
	q := EulerToQuat(e)

	roll := e.Roll * degToRad
	pitch := e.Pitch * degToRad
	rollRate := 20 * math.Cos(elapsed) * degToRad
	pitchRate := -15 * 0.7 * math.Sin(elapsed*0.7) * degToRad
	yawRate := 30 * degToRad

	gyro := r3.Vector{
		X: rollRate - yawRate*math.Sin(pitch),
		Y: pitchRate*math.Cos(roll) + yawRate*math.Sin(roll)*math.Cos(pitch),
		Z: -pitchRate*math.Sin(roll) + yawRate*math.Cos(roll)*math.Cos(pitch),
	}

	// A resting body reads +g along world up, expressed in the body frame.
	up := quat.Number{Kmag: Gravity}
	body := quat.Mul(quat.Mul(quat.Conj(q), up), q)

	return MotionSample{
		Accel:    r3.Vector{X: body.Imag, Y: body.Jmag, Z: body.Kmag},
		Gyro:     gyro,
		Rotation: q,
	}
}
