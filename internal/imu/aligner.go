// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"fmt"
	"sync"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/inertial_vio/internal/timebuf"
)

// StampPolicy selects the key used for the orientation series.
type StampPolicy int

const (
	// StampGyro keys orientation samples by the gyro timestamp of the same
	// packet. Devices that report the rotation vector alongside the gyro
	// use this.
	StampGyro StampPolicy = iota
	// StampOwn keys every series by its own timestamp.
	StampOwn
)

// ParseStampPolicy maps "gyro" or "own" to a policy.
func ParseStampPolicy(s string) (StampPolicy, error) {
	switch s {
	case "", "gyro":
		return StampGyro, nil
	case "own":
		return StampOwn, nil
	default:
		return StampGyro, fmt.Errorf("unknown orientation stamp policy %q (want gyro or own)", s)
	}
}

func (p StampPolicy) String() string {
	if p == StampOwn {
		return "own"
	}
	return "gyro"
}

// Aligned is the inertial triple resolved at one capture time.
type Aligned struct {
	Stamp    float64
	Accel    r3.Vector
	Gyro     r3.Vector
	Rotation quat.Number
}

// Aligner buffers the three inertial series and resolves them at image
// capture times. It is safe for one or more ingesting goroutines and one
// aligning goroutine.
type Aligner struct {
	policy StampPolicy

	mu    sync.Mutex
	accel *timebuf.Buffer[r3.Vector]
	gyro  *timebuf.Buffer[r3.Vector]
	rot   *timebuf.Buffer[quat.Number]
}

// NewAligner returns an aligner with empty buffers.
func NewAligner(policy StampPolicy) *Aligner {
	const initialCap = 256
	return &Aligner{
		policy: policy,
		accel:  timebuf.New[r3.Vector](initialCap),
		gyro:   timebuf.New[r3.Vector](initialCap),
		rot:    timebuf.New[quat.Number](initialCap),
	}
}

// Ingest appends one sample per series for every packet in b.
func (a *Aligner) Ingest(b Batch) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, p := range b.Packets {
		a.accel.Insert(p.Accel.Timestamp, p.Accel.Value)
		a.gyro.Insert(p.Gyro.Timestamp, p.Gyro.Value)

		rotStamp := p.Gyro.Timestamp
		if a.policy == StampOwn {
			rotStamp = p.Rotation.Timestamp
		}
		a.rot.Insert(rotStamp, p.Rotation.Value)
	}
}

// Align resolves accel, gyro and rotation at t. It reports true only when all
// three resolve; partial inertial data is never returned. When any series has
// not caught up to t the buffers are left untouched.
func (a *Aligner) Align(t float64) (Aligned, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.accel.Covers(t) || !a.gyro.Covers(t) || !a.rot.Covers(t) {
		return Aligned{}, false
	}

	acc, okA := timebuf.Resolve(a.accel, t, timebuf.LerpVector)
	gyr, okG := timebuf.Resolve(a.gyro, t, timebuf.LerpVector)
	rot, okR := timebuf.Resolve(a.rot, t, timebuf.LerpQuat)
	if !okA || !okG || !okR {
		return Aligned{}, false
	}
	return Aligned{Stamp: t, Accel: acc, Gyro: gyr, Rotation: rot}, true
}

// Lens reports the retained sample count per series.
func (a *Aligner) Lens() (accel, gyro, rot int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accel.Len(), a.gyro.Len(), a.rot.Len()
}

// Policy returns the orientation stamp policy.
func (a *Aligner) Policy() StampPolicy {
	return a.policy
}
