// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureStampIsMidExposure(t *testing.T) {
	f := Frame{Timestamp: 10.0, Exposure: 0.02}
	assert.InDelta(t, 10.01, f.CaptureStamp(), 1e-12)
}

func TestKeypoints(t *testing.T) {
	f := Features{Tracked: []TrackedFeature{{ID: 1, X: 4, Y: 5}, {ID: 2, X: 6, Y: 7}}}
	assert.Equal(t, []Keypoint{{X: 4, Y: 5, Size: 3}, {X: 6, Y: 7, Size: 3}}, f.Keypoints(DefaultKeypointSize))
	assert.Empty(t, Features{}.Keypoints(DefaultKeypointSize))
}

func TestValid(t *testing.T) {
	assert.True(t, Frame{Width: 2, Height: 2}.Valid())
	assert.False(t, Frame{}.Valid())
	assert.False(t, Frame{Width: 2, Data: []byte{1}}.Valid())
	assert.True(t, Frame{Width: 2, Height: 2, Data: nil}.Valid())
}
