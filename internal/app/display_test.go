// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/inertial_vio/internal/fusion"
	"github.com/relabs-tech/inertial_vio/internal/orientation"
	"github.com/relabs-tech/inertial_vio/internal/transport"
	"github.com/relabs-tech/inertial_vio/internal/transport/mqtttest"
)

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderPose(t *testing.T) {
	waiting := renderPose(fusion.PoseMessage{}, false)
	assert.Equal(t, displayWidth, waiting.Bounds().Dx())
	assert.Equal(t, displayHeight, waiting.Bounds().Dy())
	assert.Positive(t, litPixels(waiting))

	posed := renderPose(fusion.PoseMessage{Sequence: 9, Pose: orientation.IdentityPose(), Inertial: true}, true)
	assert.Greater(t, litPixels(posed), litPixels(waiting))
	assert.Positive(t, litPixels(renderSplash()))
}

func TestPoseLatchFollowsTopic(t *testing.T) {
	client := mqtttest.NewClient()
	latch := &poseLatch{}
	require.NoError(t, transport.SubscribeJSON(client, "vio/pose", nil, latch.set))

	_, have := latch.get()
	assert.False(t, have)

	require.NoError(t, transport.PublishJSON(client, "vio/pose", true, fusion.PoseMessage{Sequence: 4, Pose: orientation.IdentityPose()}))
	msg, have := latch.get()
	assert.True(t, have)
	assert.Equal(t, int64(4), msg.Sequence)
}
