// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package frame holds the camera-side messages consumed by the fusion loop.
// Pixel data is carried opaquely; nothing here decodes images.
package frame

// Frame is one image or depth map from a camera sensor.
type Frame struct {
	Sequence  int64   `json:"seq"`
	Instance  int     `json:"instance"` // sensor/socket number on the board
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Timestamp float64 `json:"ts"`       // device clock, start of exposure, seconds
	Exposure  float64 `json:"exposure"` // seconds
	Encoding  string  `json:"encoding"` // e.g. "gray8", "depth16", "jpeg"
	Data      []byte  `json:"data"`
}

// CaptureStamp is the device time at the middle of the exposure.
func (f Frame) CaptureStamp() float64 {
	return f.Timestamp + f.Exposure/2
}

// Valid reports whether the frame has a usable geometry. Data is opaque and
// may be empty.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0
}

// TrackedFeature is one 2D feature tracked across frames.
type TrackedFeature struct {
	ID  int     `json:"id"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Age int     `json:"age"`
}

// Features is the tracker output for one frame.
type Features struct {
	Sequence  int64            `json:"seq"`
	Timestamp float64          `json:"ts"`
	Tracked   []TrackedFeature `json:"tracked"`
}

// Keypoint is a feature position handed to the estimator.
type Keypoint struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size"`
}

// DefaultKeypointSize is the diameter given to keypoints built from tracked
// features.
const DefaultKeypointSize = 3

// Keypoints converts the tracked features to keypoints of the given size.
func (f Features) Keypoints(size float64) []Keypoint {
	out := make([]Keypoint, 0, len(f.Tracked))
	for _, tf := range f.Tracked {
		out = append(out, Keypoint{X: tf.X, Y: tf.Y, Size: size})
	}
	return out
}

// ResetRequest asks the estimator to drop its state.
type ResetRequest struct {
	Reason string `json:"reason,omitempty"`
}
