// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imu defines inertial packets, the sources that deliver them and the
// aligner that resolves them at image capture times.
package imu

import (
	"context"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Reading is one accelerometer (m/s²) or gyroscope (rad/s) sample stamped
// with the device clock in seconds.
type Reading struct {
	Timestamp float64   `json:"ts"`
	Value     r3.Vector `json:"v"`
}

// RotationReading is one orientation sample (i, j, k, real) stamped with the
// device clock in seconds.
type RotationReading struct {
	Timestamp float64     `json:"ts"`
	Value     quat.Number `json:"q"`
}

// Packet is one inertial report holding up to three component readings.
type Packet struct {
	Accel    Reading         `json:"accel"`
	Gyro     Reading         `json:"gyro"`
	Rotation RotationReading `json:"rotation"`
}

// Batch is the set of packets delivered by one producer callback.
type Batch struct {
	Source  string   `json:"source"`
	Packets []Packet `json:"packets"`
}

// Handler receives batches from a Source. Handlers run on the source's
// goroutine and must not block.
type Handler func(Batch)

// Source pushes inertial batches to registered handlers until its context is
// cancelled.
type Source interface {
	// OnPacket registers h. Register before Run.
	OnPacket(h Handler)
	// Run reads the device until ctx is done or a read fails.
	Run(ctx context.Context) error
	Close() error
}

// Handlers is a reusable registration list for Source implementations.
type Handlers []Handler

// Add appends h.
func (hs *Handlers) Add(h Handler) {
	*hs = append(*hs, h)
}

// Dispatch delivers b to every handler in registration order.
func (hs Handlers) Dispatch(b Batch) {
	for _, h := range hs {
		h(b)
	}
}
