// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/inertial_vio/internal/calib"
	"github.com/relabs-tech/inertial_vio/internal/frame"
	"github.com/relabs-tech/inertial_vio/internal/imu"
	"github.com/relabs-tech/inertial_vio/internal/logging"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
	"github.com/relabs-tech/inertial_vio/internal/queue"
)

type fakeEstimator struct {
	mu     sync.Mutex
	events []string
	obs    []Observation
	closes int
}

func (e *fakeEstimator) Process(obs Observation) orientation.Pose {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, "process")
	e.obs = append(e.obs, obs)
	return orientation.IdentityPose()
}

func (e *fakeEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, "reset")
}

func (e *fakeEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	e.events = append(e.events, "close")
	return nil
}

type fakeSink struct {
	mu           sync.Mutex
	poses        []PoseMessage
	passthrough  []frame.Frame
	SendPoseFunc func(PoseMessage) error
}

func (s *fakeSink) SendPose(msg PoseMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SendPoseFunc != nil {
		if err := s.SendPoseFunc(msg); err != nil {
			return err
		}
	}
	s.poses = append(s.poses, msg)
	return nil
}

func (s *fakeSink) SendPassthrough(f frame.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passthrough = append(s.passthrough, f)
	return nil
}

type storeFunc func(instance, width, height int, alpha float64) (calib.Intrinsics, string, error)

func (f storeFunc) Lookup(instance, width, height int, alpha float64) (calib.Intrinsics, string, error) {
	return f(instance, width, height, alpha)
}

func boardStore(board string) calib.Store {
	return storeFunc(func(_, w, h int, alpha float64) (calib.Intrinsics, string, error) {
		return calib.Intrinsics{Width: w, Height: h, Fx: 400, Fy: 400, Alpha: alpha}, board, nil
	})
}

type harness struct {
	image     *queue.Queue[frame.Frame]
	depth     *queue.Queue[frame.Frame]
	features  *queue.Queue[frame.Features]
	reset     *queue.Queue[frame.ResetRequest]
	aligner   *imu.Aligner
	gate      *calib.Gate
	estimator *fakeEstimator
	sink      *fakeSink
	loop      *Loop
}

func newHarness(t *testing.T, board string, withFeatures bool) *harness {
	t.Helper()
	logger := logging.NewTest(t)
	h := &harness{
		image:     queue.New[frame.Frame](8),
		depth:     queue.New[frame.Frame](8),
		reset:     queue.New[frame.ResetRequest](2),
		aligner:   imu.NewAligner(imu.StampGyro),
		gate:      calib.NewGate(boardStore(board), calib.DefaultBoardTable(), -1, logger),
		estimator: &fakeEstimator{},
		sink:      &fakeSink{},
	}
	deps := Deps{
		Image:     h.image,
		Depth:     h.depth,
		Reset:     h.reset,
		Aligner:   h.aligner,
		Gate:      h.gate,
		Estimator: h.estimator,
		Sink:      h.sink,
		Logger:    logger,
	}
	if withFeatures {
		h.features = queue.New[frame.Features](8)
		deps.Features = h.features
	}
	loop, err := NewLoop(deps)
	require.NoError(t, err)
	h.loop = loop
	return h
}

func (h *harness) pushFrame(seq int64, ts float64) {
	h.image.Push(frame.Frame{Sequence: seq, Width: 640, Height: 400, Timestamp: ts, Exposure: 0.02, Encoding: "gray8"})
	h.depth.Push(frame.Frame{Sequence: seq, Width: 640, Height: 400, Timestamp: ts, Encoding: "depth16"})
}

func (h *harness) closeSources() {
	h.image.Close()
	h.depth.Close()
	if h.features != nil {
		h.features.Close()
	}
}

func (h *harness) ingestIMU(stamps ...float64) {
	var b imu.Batch
	for _, ts := range stamps {
		b.Packets = append(b.Packets, imu.Packet{
			Accel:    imu.Reading{Timestamp: ts, Value: r3.Vector{Z: 9.8}},
			Gyro:     imu.Reading{Timestamp: ts, Value: r3.Vector{X: ts}},
			Rotation: imu.RotationReading{Timestamp: ts, Value: quat.Number{Real: 1}},
		})
	}
	h.aligner.Ingest(b)
}

func runLoop(t *testing.T, l *Loop) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.Run(ctx)
}

func TestNewLoopRequiresDeps(t *testing.T) {
	_, err := NewLoop(Deps{})
	require.Error(t, err)
}

func TestLoopCalibratesOnFirstFrameThenFuses(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	h.ingestIMU(0.0, 1.0, 2.0)
	h.pushFrame(1, 0.40)
	h.pushFrame(2, 0.49)
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))

	assert.Equal(t, Stopped, h.loop.State())
	assert.Equal(t, calib.Resolved, h.gate.State().Phase())
	require.Len(t, h.estimator.obs, 1, "first frame only feeds calibration")
	require.Len(t, h.sink.poses, 1)
	require.Len(t, h.sink.passthrough, 1)

	obs := h.estimator.obs[0]
	assert.Equal(t, int64(2), obs.Sequence)
	assert.InDelta(t, 0.5, obs.Stamp, 1e-12)
	require.NotNil(t, obs.Inertial)
	assert.InDelta(t, 0.5, obs.Inertial.Gyro.X, 1e-9)
	assert.Nil(t, obs.Keypoints)
	assert.InDelta(t, 0.0525, obs.IMUToCamera.Translation().X, 1e-12)
	assert.Equal(t, 640, obs.Intrinsics.Width)

	assert.True(t, h.sink.poses[0].Inertial)
	assert.Equal(t, int64(2), h.sink.passthrough[0].Sequence)
	assert.Equal(t, 1, h.estimator.closes)
}

func TestLoopResetBeforeProcess(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	require.Equal(t, calib.Resolved, h.gate.Resolve(0, 640, 400).Phase())

	h.reset.Push(frame.ResetRequest{Reason: "operator"})
	h.pushFrame(1, 1.0)
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	assert.Equal(t, []string{"reset", "process", "close"}, h.estimator.events)
	assert.Equal(t, uint64(1), h.loop.Stats().Resets)
}

func TestLoopResetWithoutFrameEmitsNothing(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	require.Equal(t, calib.Resolved, h.gate.Resolve(0, 640, 400).Phase())

	h.reset.Push(frame.ResetRequest{})
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	assert.Equal(t, []string{"reset", "close"}, h.estimator.events)
	assert.Empty(t, h.sink.poses)
}

func TestLoopUnknownBoardStops(t *testing.T) {
	h := newHarness(t, "OAK-D-LITE", false)
	h.ingestIMU(0, 1, 2)
	for i := int64(1); i <= 3; i++ {
		h.pushFrame(i, float64(i)*0.1)
	}

	err := runLoop(t, h.loop)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCalibration)
	assert.ErrorIs(t, err, calib.ErrUnknownBoard)

	assert.Equal(t, Stopped, h.loop.State())
	assert.Equal(t, calib.Failed, h.gate.State().Phase())
	assert.Empty(t, h.sink.poses)
	assert.Empty(t, h.estimator.obs)
	assert.Equal(t, 1, h.estimator.closes)
	assert.Equal(t, 2, h.image.Len(), "remaining frames are not consumed")
}

func TestLoopVisionOnlyWhenInertialNotReady(t *testing.T) {
	h := newHarness(t, "DM9098", false)
	h.ingestIMU(0.0, 0.2)
	h.pushFrame(1, 0.1)
	h.pushFrame(2, 1.0)
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	require.Len(t, h.estimator.obs, 1)
	assert.Nil(t, h.estimator.obs[0].Inertial)
	require.Len(t, h.sink.poses, 1)
	assert.False(t, h.sink.poses[0].Inertial)

	st := h.loop.Stats()
	assert.Equal(t, uint64(1), st.VisionOnly)
	assert.Equal(t, uint64(0), st.InertialUsed)
}

func TestLoopKeypointsFromFeatures(t *testing.T) {
	h := newHarness(t, "OAK-D", true)
	h.pushFrame(1, 0.1)
	h.features.Push(frame.Features{Sequence: 1})
	h.pushFrame(2, 0.2)
	h.features.Push(frame.Features{Sequence: 2, Tracked: []frame.TrackedFeature{
		{ID: 1, X: 10, Y: 20},
		{ID: 2, X: 30, Y: 40},
	}})
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	require.Len(t, h.estimator.obs, 1)
	kps := h.estimator.obs[0].Keypoints
	require.Len(t, kps, 2)
	assert.Equal(t, frame.Keypoint{X: 30, Y: 40, Size: 3}, kps[1])
	assert.Equal(t, 2, h.sink.poses[0].Keypoints)
}

func TestLoopSkipsEmptyFrames(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	h.image.Push(frame.Frame{Sequence: 1})
	h.depth.Push(frame.Frame{Sequence: 1})
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	assert.Equal(t, calib.Uninitialized, h.gate.State().Phase())
	assert.Equal(t, uint64(1), h.loop.Stats().Skipped)
}

func TestLoopContinuesAfterPublishError(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	require.Equal(t, calib.Resolved, h.gate.Resolve(0, 640, 400).Phase())

	failed := false
	h.sink.SendPoseFunc = func(PoseMessage) error {
		if !failed {
			failed = true
			return errors.New("broker down")
		}
		return nil
	}
	h.pushFrame(1, 0.1)
	h.pushFrame(2, 0.2)
	h.closeSources()

	require.NoError(t, runLoop(t, h.loop))
	assert.Len(t, h.estimator.obs, 2)
	require.Len(t, h.sink.poses, 1)
	assert.Equal(t, int64(2), h.sink.poses[0].Sequence)
	assert.Len(t, h.sink.passthrough, 2)
	assert.Equal(t, uint64(1), h.loop.Stats().Poses)
}

func TestLoopStopsOnCancel(t *testing.T) {
	h := newHarness(t, "OAK-D", false)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancel")
	}
	assert.Equal(t, Stopped, h.loop.State())
	assert.Equal(t, 1, h.estimator.closes)
}
