// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calib resolves camera intrinsics and the IMU-to-camera extrinsic
// once, on the first valid frame.
package calib

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

// ErrUnknownBoard is returned when no board rule matches the identifier read
// from the calibration store.
var ErrUnknownBoard = errors.New("unknown IMU local transform for board")

// Intrinsics is a pinhole camera model scaled to the stream resolution.
type Intrinsics struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
	// Alpha is the free-scaling hint passed to the lookup; -1 means unset.
	// It is recorded only. Fx, Fy, Ppx and Ppy are not rescaled by it.
	Alpha float64 `json:"alpha"`
}

// Store looks up calibration for one camera sensor.
type Store interface {
	// Lookup returns the intrinsics of sensor instance scaled to width x height
	// and the board identifier the calibration was written for.
	Lookup(instance, width, height int, alpha float64) (Intrinsics, string, error)
}

// Resolution is the outcome of a successful calibration.
type Resolution struct {
	Board       string
	Intrinsics  Intrinsics
	IMUToCamera orientation.Transform
}

// Phase tags a State.
type Phase int

const (
	Uninitialized Phase = iota
	Resolved
	Failed
)

func (p Phase) String() string {
	switch p {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// State is Uninitialized, Resolved(Resolution) or Failed(error).
type State struct {
	phase Phase
	res   Resolution
	err   error
}

// Phase returns the tag.
func (s State) Phase() Phase { return s.phase }

// Resolution returns the calibration when the state is Resolved.
func (s State) Resolution() (Resolution, bool) {
	return s.res, s.phase == Resolved
}

// Err returns the failure when the state is Failed.
func (s State) Err() error {
	if s.phase != Failed {
		return nil
	}
	return s.err
}

// Gate runs the calibration lookup once and latches the result. Not safe for
// concurrent use; the fusion loop is its only caller.
type Gate struct {
	store  Store
	table  BoardTable
	alpha  float64
	logger *zap.SugaredLogger
	state  State
}

// NewGate returns an unresolved gate.
func NewGate(store Store, table BoardTable, alpha float64, logger *zap.SugaredLogger) *Gate {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{store: store, table: table, alpha: alpha, logger: logger}
}

// State returns the latched state.
func (g *Gate) State() State {
	return g.state
}

// Resolve performs the lookup on the first call and returns the latched
// state on every later call.
func (g *Gate) Resolve(instance, width, height int) State {
	if g.state.phase != Uninitialized {
		return g.state
	}
	g.state = g.resolve(instance, width, height)
	return g.state
}

func (g *Gate) resolve(instance, width, height int) State {
	intr, board, err := g.store.Lookup(instance, width, height, g.alpha)
	if err != nil {
		g.logger.Errorw("calib: lookup failed", "instance", instance, "error", err)
		return State{phase: Failed, err: fmt.Errorf("calibration lookup for sensor %d: %w", instance, err)}
	}

	extrinsic, ok := g.table.Match(board)
	if !ok {
		g.logger.Errorf("calib: unknown IMU local transform for %q", board)
		return State{phase: Failed, err: fmt.Errorf("%w %q", ErrUnknownBoard, board)}
	}

	res := Resolution{
		Board:       board,
		Intrinsics:  intr,
		IMUToCamera: orientation.Identity().Mul(extrinsic),
	}
	g.logger.Infow("calib: resolved",
		"board", board,
		"instance", instance,
		"width", intr.Width,
		"height", intr.Height,
		"imu_to_camera", res.IMUToCamera.String(),
	)
	return State{phase: Resolved, res: res}
}
