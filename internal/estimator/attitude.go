// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package estimator provides a small attitude-only pose estimator. It keeps
// the fusion node runnable end to end without a visual odometry backend.
package estimator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

// ErrClosed is returned by Close on a second call.
var ErrClosed = errors.New("estimator closed")

// Params tunes the Attitude estimator.
type Params struct {
	// GyroWeight is the complementary-filter weight of the gyro-propagated
	// orientation against the measured one, in [0, 1].
	GyroWeight float64 `json:"gyro_weight"`
	// HoldOnMissing keeps the last orientation on frames without inertial
	// data instead of propagating the last gyro rate.
	HoldOnMissing bool `json:"hold_on_missing"`
}

// DefaultParams returns the parameters used for keys left unset.
func DefaultParams() Params {
	return Params{GyroWeight: 0.98, HoldOnMissing: true}
}

// DecodeParams decodes string parameters over DefaultParams. Unknown keys
// are rejected.
func DecodeParams(raw map[string]string) (Params, error) {
	p := DefaultParams()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &p,
	})
	if err != nil {
		return Params{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return Params{}, fmt.Errorf("estimator params: %w", err)
	}
	if p.GyroWeight < 0 || p.GyroWeight > 1 {
		return Params{}, fmt.Errorf("estimator params: gyro_weight %.3f out of range [0,1]", p.GyroWeight)
	}
	return p, nil
}

// Attitude estimates camera orientation from the aligned inertial triple.
// Translation stays at zero.
type Attitude struct {
	params Params
	logger *zap.SugaredLogger

	mu        sync.Mutex
	q         quat.Number // IMU orientation in the world frame
	lastStamp float64
	lastGyro  [3]float64
	hasLast   bool
	frames    uint64
	closed    bool
}

// NewAttitude builds an estimator from string parameters.
func NewAttitude(raw map[string]string, logger *zap.SugaredLogger) (*Attitude, error) {
	params, err := DecodeParams(raw)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger.Infow("estimator: attitude initialized", "gyro_weight", params.GyroWeight, "hold_on_missing", params.HoldOnMissing)
	return &Attitude{
		params: params,
		logger: logger,
		q:      quat.Number{Real: 1},
	}, nil
}

// Params returns the decoded parameters.
func (a *Attitude) Params() Params {
	return a.params
}

// Process implements fusion.Estimator.
func (a *Attitude) Process(obs fusion.Observation) orientation.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return orientation.IdentityPose()
	}
	a.frames++

	if in := obs.Inertial; in != nil {
		measured := orientation.Normalize(in.Rotation)
		if a.hasLast {
			predicted := a.propagate(obs.Stamp)
			a.q = blend(predicted, measured, a.params.GyroWeight)
		} else {
			a.q = measured
		}
		a.lastGyro = [3]float64{in.Gyro.X, in.Gyro.Y, in.Gyro.Z}
		a.lastStamp = obs.Stamp
		a.hasLast = true
	} else if a.hasLast && !a.params.HoldOnMissing {
		a.q = a.propagate(obs.Stamp)
		a.lastStamp = obs.Stamp
	}

	return orientation.Pose{Rotation: toCamera(a.q, obs.IMUToCamera)}
}

// propagate integrates the last gyro rate up to stamp. Caller holds mu.
func (a *Attitude) propagate(stamp float64) quat.Number {
	dt := stamp - a.lastStamp
	if dt <= 0 {
		return a.q
	}
	return orientation.IntegrateGyro(a.q, a.lastGyro[0], a.lastGyro[1], a.lastGyro[2], dt)
}

// Reset implements fusion.Estimator.
func (a *Attitude) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.q = quat.Number{Real: 1}
	a.hasLast = false
	a.lastStamp = 0
	a.lastGyro = [3]float64{}
	a.logger.Infow("estimator: reset", "frames", a.frames)
	a.frames = 0
}

// Close implements fusion.Estimator.
func (a *Attitude) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	a.logger.Infow("estimator: closed", "frames", a.frames)
	return nil
}

// blend mixes two unit quaternions, taking the shorter arc.
func blend(predicted, measured quat.Number, gyroWeight float64) quat.Number {
	if dot(predicted, measured) < 0 {
		measured = quat.Scale(-1, measured)
	}
	return orientation.Normalize(quat.Add(
		quat.Scale(gyroWeight, predicted),
		quat.Scale(1-gyroWeight, measured),
	))
}

func dot(a, b quat.Number) float64 {
	return a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
}

// toCamera expresses the IMU rotation q in the camera frame given the
// IMU-to-camera extrinsic.
func toCamera(q quat.Number, imuToCamera orientation.Transform) quat.Number {
	e := orientation.Normalize(imuToCamera.Quaternion())
	return orientation.Normalize(quat.Mul(quat.Mul(e, q), quat.Conj(e)))
}

var _ fusion.Estimator = (*Attitude)(nil)
