// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"encoding/json"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a 6-DoF rigid transform produced by the estimator once per cycle.
type Pose struct {
	Translation r3.Vector
	Rotation    quat.Number
}

// IdentityPose is the pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// PoseFromTransform extracts translation and rotation from t.
func PoseFromTransform(t Transform) Pose {
	return Pose{Translation: t.Translation(), Rotation: t.Quaternion()}
}

// Transform returns the pose as a rigid transform.
func (p Pose) Transform() Transform {
	return TransformFromQuat(p.Rotation, p.Translation)
}

// Euler returns the rotation as roll/pitch/yaw in degrees.
func (p Pose) Euler() Euler {
	return QuatToEuler(p.Rotation)
}

// poseJSON is the wire shape published to MQTT and served over HTTP.
type poseJSON struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	QW    float64 `json:"qw"`
	QX    float64 `json:"qx"`
	QY    float64 `json:"qy"`
	QZ    float64 `json:"qz"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// MarshalJSON writes translation, quaternion and the derived euler angles.
func (p Pose) MarshalJSON() ([]byte, error) {
	e := p.Euler()
	return json.Marshal(poseJSON{
		X: p.Translation.X, Y: p.Translation.Y, Z: p.Translation.Z,
		QW: p.Rotation.Real, QX: p.Rotation.Imag, QY: p.Rotation.Jmag, QZ: p.Rotation.Kmag,
		Roll: e.Roll, Pitch: e.Pitch, Yaw: e.Yaw,
	})
}

// UnmarshalJSON reads translation and quaternion; euler fields are derived
// and ignored on input.
func (p *Pose) UnmarshalJSON(data []byte) error {
	var w poseJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Translation = r3.Vector{X: w.X, Y: w.Y, Z: w.Z}
	p.Rotation = quat.Number{Real: w.QW, Imag: w.QX, Jmag: w.QY, Kmag: w.QZ}
	return nil
}
