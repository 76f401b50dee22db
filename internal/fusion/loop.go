// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion drives one synchronized observation per image frame through
// the pose estimator.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/calib"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/queue"
)

// ErrCalibration stops the loop when the calibration gate fails.
var ErrCalibration = errors.New("calibration failed")

// Deps wires a Loop. Features, Reset and Aligner are optional.
type Deps struct {
	Image     Getter[frame.Frame]
	Depth     Getter[frame.Frame]
	Features  Getter[frame.Features]
	Reset     Poller[frame.ResetRequest]
	Aligner   InertialAligner
	Gate      *calib.Gate
	Estimator Estimator
	Sink      Sink
	Logger    *zap.SugaredLogger
}

// Loop is the fusion control loop. Run it on a single goroutine.
type Loop struct {
	deps Deps

	state     atomic.Int32
	closeOnce sync.Once

	cycles       atomic.Uint64
	poses        atomic.Uint64
	inertialUsed atomic.Uint64
	visionOnly   atomic.Uint64
	resets       atomic.Uint64
	skipped      atomic.Uint64
}

// NewLoop validates deps and returns a loop in AwaitingFrame.
func NewLoop(deps Deps) (*Loop, error) {
	switch {
	case deps.Image == nil:
		return nil, errors.New("fusion: image source is required")
	case deps.Depth == nil:
		return nil, errors.New("fusion: depth source is required")
	case deps.Gate == nil:
		return nil, errors.New("fusion: calibration gate is required")
	case deps.Estimator == nil:
		return nil, errors.New("fusion: estimator is required")
	case deps.Sink == nil:
		return nil, errors.New("fusion: sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	return &Loop{deps: deps}, nil
}

// State returns the current lifecycle stage.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	if prev := State(l.state.Swap(int32(s))); prev != s {
		l.deps.Logger.Debugw("fusion: state change", "from", prev, "to", s)
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:       l.cycles.Load(),
		Poses:        l.poses.Load(),
		InertialUsed: l.inertialUsed.Load(),
		VisionOnly:   l.visionOnly.Load(),
		Resets:       l.resets.Load(),
		Skipped:      l.skipped.Load(),
	}
}

// Run processes frames until ctx is cancelled, a source closes, or
// calibration fails. The estimator is closed exactly once on every path.
// A cooperative stop returns nil.
func (l *Loop) Run(ctx context.Context) (err error) {
	defer func() {
		l.setState(Stopped)
		err = multierr.Append(err, l.closeEstimator())
		l.deps.Logger.Infow("fusion: loop stopped", "stats", l.Stats())
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := l.cycle(ctx); err != nil {
			if isStop(err) {
				return nil
			}
			return err
		}
	}
}

func isStop(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, queue.ErrClosed)
}

func (l *Loop) closeEstimator() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.deps.Estimator.Close()
	})
	return err
}

// cycle runs one fusion iteration.
func (l *Loop) cycle(ctx context.Context) error {
	l.pollReset()

	img, err := l.deps.Image.Get(ctx)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	depth, err := l.deps.Depth.Get(ctx)
	if err != nil {
		return fmt.Errorf("depth: %w", err)
	}
	var features *frame.Features
	if l.deps.Features != nil {
		f, err := l.deps.Features.Get(ctx)
		if err != nil {
			return fmt.Errorf("features: %w", err)
		}
		features = &f
	}
	l.pollReset()
	l.cycles.Add(1)

	if !img.Valid() || !depth.Valid() {
		l.skipped.Add(1)
		l.deps.Logger.Debugw("fusion: skipping cycle with empty frame", "seq", img.Sequence)
		return nil
	}

	st := l.deps.Gate.State()
	switch st.Phase() {
	case calib.Uninitialized:
		l.setState(Calibrating)
		st = l.deps.Gate.Resolve(img.Instance, img.Width, img.Height)
		if st.Phase() != calib.Resolved {
			l.deps.Logger.Errorw("fusion: stopping, calibration failed", "error", st.Err())
			return fmt.Errorf("%w: %w", ErrCalibration, st.Err())
		}
		l.setState(Fusing)
		// The first frame only feeds calibration.
		return nil
	case calib.Failed:
		return fmt.Errorf("%w: %w", ErrCalibration, st.Err())
	case calib.Resolved:
	}

	res, _ := st.Resolution()
	obs := l.observe(img, depth, features, res)
	pose := l.deps.Estimator.Process(obs)
	l.publish(PoseMessage{
		Sequence:  obs.Sequence,
		Stamp:     obs.Stamp,
		Pose:      pose,
		Inertial:  obs.Inertial != nil,
		Keypoints: len(obs.Keypoints),
	}, img)
	return nil
}

func (l *Loop) pollReset() {
	if l.deps.Reset == nil {
		return
	}
	req, ok := l.deps.Reset.TryGet()
	if !ok {
		return
	}
	l.deps.Estimator.Reset()
	l.resets.Add(1)
	l.deps.Logger.Infow("fusion: estimator reset", "reason", req.Reason)
}

func (l *Loop) observe(img, depth frame.Frame, features *frame.Features, res calib.Resolution) Observation {
	stamp := img.CaptureStamp()
	obs := Observation{
		Image:       img,
		Depth:       depth,
		Stamp:       stamp,
		Sequence:    img.Sequence,
		Intrinsics:  res.Intrinsics,
		IMUToCamera: res.IMUToCamera,
	}
	if features != nil {
		obs.Keypoints = features.Keypoints(frame.DefaultKeypointSize)
	}

	if l.deps.Aligner != nil {
		if aligned, ok := l.deps.Aligner.Align(stamp); ok {
			obs.Inertial = &aligned
		}
	}
	if obs.Inertial != nil {
		l.inertialUsed.Add(1)
	} else {
		l.visionOnly.Add(1)
		l.deps.Logger.Debugw("fusion: inertial not ready, vision only", "seq", img.Sequence, "stamp", stamp)
	}
	return obs
}

func (l *Loop) publish(msg PoseMessage, passthrough frame.Frame) {
	if err := l.deps.Sink.SendPose(msg); err != nil {
		l.deps.Logger.Warnw("fusion: pose publish error", "seq", msg.Sequence, "error", err)
	} else {
		l.poses.Add(1)
	}
	if err := l.deps.Sink.SendPassthrough(passthrough); err != nil {
		l.deps.Logger.Warnw("fusion: passthrough publish error", "seq", msg.Sequence, "error", err)
	}
}
