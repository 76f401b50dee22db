// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"context"

	"github.com/relabs-tech/inertial_vio/internal/calib"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

// Observation is the synchronized input for one fusion cycle.
type Observation struct {
	Image frame.Frame
	Depth frame.Frame
	// Keypoints is nil when no features packet arrived with the frame.
	Keypoints []frame.Keypoint
	// Inertial is nil unless all three inertial series resolved at Stamp.
	Inertial    *imu.Aligned
	Stamp       float64
	Sequence    int64
	Intrinsics  calib.Intrinsics
	IMUToCamera orientation.Transform
}

// Estimator turns observations into poses.
type Estimator interface {
	Process(obs Observation) orientation.Pose
	// Reset drops all internal state; the next pose starts from identity.
	Reset()
	Close() error
}

// PoseMessage is what the loop publishes for each fused frame.
type PoseMessage struct {
	Sequence  int64            `json:"seq"`
	Stamp     float64          `json:"ts"`
	Pose      orientation.Pose `json:"pose"`
	Inertial  bool             `json:"inertial"`
	Keypoints int              `json:"keypoints"`
}

// Sink receives the loop's outputs.
type Sink interface {
	SendPose(msg PoseMessage) error
	SendPassthrough(f frame.Frame) error
}

// Getter is a blocking pull source.
type Getter[T any] interface {
	Get(ctx context.Context) (T, error)
}

// Poller is a non-blocking pull source.
type Poller[T any] interface {
	TryGet() (T, bool)
}

// InertialAligner resolves the inertial triple at a capture time.
type InertialAligner interface {
	Align(t float64) (imu.Aligned, bool)
}

// State is the loop's lifecycle stage.
type State int32

const (
	AwaitingFrame State = iota
	Calibrating
	Fusing
	Stopped
)

func (s State) String() string {
	switch s {
	case AwaitingFrame:
		return "awaiting_frame"
	case Calibrating:
		return "calibrating"
	case Fusing:
		return "fusing"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats counts loop outcomes since start.
type Stats struct {
	Cycles       uint64 `json:"cycles"`
	Poses        uint64 `json:"poses"`
	InertialUsed uint64 `json:"inertial_used"`
	VisionOnly   uint64 `json:"vision_only"`
	Resets       uint64 `json:"resets"`
	Skipped      uint64 `json:"skipped"`
}
