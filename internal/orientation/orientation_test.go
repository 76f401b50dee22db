// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

const tol = 1e-9

func TestTiltEulerLevel(t *testing.T) {
	e := TiltEuler(0, 0, 1)
	assert.InDelta(t, 0, e.Roll, tol)
	assert.InDelta(t, 0, e.Pitch, tol)
	assert.Equal(t, 0.0, e.Yaw)
}

func TestTiltEulerRolled(t *testing.T) {
	e := TiltEuler(0, 1, 1)
	assert.InDelta(t, 45, e.Roll, 1e-6)
	assert.InDelta(t, 0, e.Pitch, 1e-6)
}

func TestEulerQuatRoundTrip(t *testing.T) {
	for _, e := range []Euler{
		{Roll: 10, Pitch: -20, Yaw: 30},
		{Roll: -170, Pitch: 45, Yaw: 90},
		{},
	} {
		got := QuatToEuler(EulerToQuat(e))
		assert.InDelta(t, e.Roll, got.Roll, 1e-6)
		assert.InDelta(t, e.Pitch, got.Pitch, 1e-6)
		assert.InDelta(t, e.Yaw, got.Yaw, 1e-6)
	}
}

func TestNormalizeZeroIsIdentity(t *testing.T) {
	assert.Equal(t, quat.Number{Real: 1}, Normalize(quat.Number{}))
}

func TestIntegrateGyroQuarterTurn(t *testing.T) {
	q := quat.Number{Real: 1}
	for i := 0; i < 100; i++ {
		q = IntegrateGyro(q, 0, 0, math.Pi/2, 0.01)
	}
	assert.InDelta(t, 90, QuatToEuler(q).Yaw, 1e-6)
}

func TestTransformComposeAndInverse(t *testing.T) {
	a := NewTransform(
		0, -1, 0, 0.0525,
		1, 0, 0, 0.013662,
		0, 0, 1, 0,
	)
	v := r3.Vector{X: 1, Y: 2, Z: 3}

	got := a.Apply(v)
	assert.InDelta(t, -2+0.0525, got.X, tol)
	assert.InDelta(t, 1+0.013662, got.Y, tol)
	assert.InDelta(t, 3, got.Z, tol)

	assert.True(t, a.Mul(a.Inverse()).ApproxEqual(Identity(), tol))
	assert.True(t, Identity().Mul(a).ApproxEqual(a, tol))
	assert.True(t, Transform{}.ApproxEqual(Identity(), tol), "zero value is identity")
}

func TestTransformQuaternionRoundTrip(t *testing.T) {
	for _, tr := range []Transform{
		NewTransform(0, 1, 0, 0.037945, 1, 0, 0, 0.00079, 0, 0, -1, 0),
		NewTransform(-1, 0, 0, -0.059198, 0, -1, 0, -0.009289, 0, 0, 1, 0),
		Identity(),
	} {
		back := TransformFromQuat(tr.Quaternion(), tr.Translation())
		assert.True(t, back.ApproxEqual(tr, 1e-9), "%v vs %v", back, tr)
	}
}

func TestPoseJSON(t *testing.T) {
	p := Pose{
		Translation: r3.Vector{X: 1, Y: 2, Z: 3},
		Rotation:    EulerToQuat(Euler{Yaw: 90}),
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var fields map[string]float64
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.InDelta(t, 90, fields["yaw"], 1e-6)
	assert.Equal(t, 3.0, fields["z"])

	var back Pose
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, p.Translation, back.Translation)
	assert.InDelta(t, p.Rotation.Real, back.Rotation.Real, tol)
	assert.InDelta(t, p.Rotation.Kmag, back.Rotation.Kmag, tol)
}

func TestMockMotionAtRestReadsGravity(t *testing.T) {
	s := MockMotion{}.SampleAt(0)
	assert.InDelta(t, Gravity, s.Accel.Norm(), 1e-9)

	e := MockMotion{}.EulerAt(0)
	tilt := TiltEuler(s.Accel.X, s.Accel.Y, s.Accel.Z)
	assert.InDelta(t, e.Roll, tilt.Roll, 1e-6)
	assert.InDelta(t, e.Pitch, tilt.Pitch, 1e-6)
}
