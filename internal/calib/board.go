// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calib

import (
	"strings"

	"github.com/relabs-tech/inertial_vio/internal/orientation"
)

// BoardRule maps a board identifier to the IMU-to-camera transform mounted
// on that board.
type BoardRule struct {
	Name        string
	Prefix      bool // match any identifier starting with Name
	IMUToCamera orientation.Transform
}

func (r BoardRule) matches(board string) bool {
	if r.Prefix {
		return strings.HasPrefix(board, r.Name)
	}
	return board == r.Name
}

// BoardTable is an ordered rule list; the first matching rule wins.
type BoardTable []BoardRule

// Match returns the transform for board.
func (t BoardTable) Match(board string) (orientation.Transform, bool) {
	for _, r := range t {
		if r.matches(board) {
			return r.IMUToCamera, true
		}
	}
	return orientation.Transform{}, false
}

// DefaultBoardTable lists the boards with a known IMU mounting.
func DefaultBoardTable() BoardTable {
	oakD := orientation.NewTransform(
		0, -1, 0, 0.0525,
		1, 0, 0, 0.013662,
		0, 0, 1, 0,
	)
	return BoardTable{
		{Name: "OAK-D", IMUToCamera: oakD},
		{Name: "BW1098OBC", IMUToCamera: oakD},
		{Name: "DM9098", IMUToCamera: orientation.NewTransform(
			0, 1, 0, 0.037945,
			1, 0, 0, 0.00079,
			0, 0, -1, 0,
		)},
		{Name: "NG2094", IMUToCamera: orientation.NewTransform(
			0, 1, 0, 0.0374,
			1, 0, 0, 0.00176,
			0, 0, -1, 0,
		)},
		{Name: "NG9097", IMUToCamera: orientation.NewTransform(
			0, 1, 0, 0.04,
			1, 0, 0, 0.020265,
			0, 0, -1, 0,
		)},
		{Name: "BK3389C", Prefix: true, IMUToCamera: orientation.NewTransform(
			-1, 0, 0, -0.059198,
			0, -1, 0, -0.009289,
			0, 0, 1, 0,
		)},
	}
}
