// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
)

func packet(ts float64, v float64) Packet {
	return Packet{
		Accel:    Reading{Timestamp: ts, Value: r3.Vector{Z: v}},
		Gyro:     Reading{Timestamp: ts, Value: r3.Vector{X: v}},
		Rotation: RotationReading{Timestamp: ts, Value: quat.Number{Real: v}},
	}
}

func TestAlignInterpolatesAllSeries(t *testing.T) {
	a := NewAligner(StampGyro)
	a.Ingest(Batch{Packets: []Packet{packet(1.0, 1), packet(2.0, 2)}})

	got, ok := a.Align(1.5)
	require.True(t, ok)
	assert.Equal(t, 1.5, got.Stamp)
	assert.Equal(t, r3.Vector{Z: 1.5}, got.Accel)
	assert.Equal(t, r3.Vector{X: 1.5}, got.Gyro)
	assert.Equal(t, quat.Number{Real: 1.5}, got.Rotation)

	accel, gyro, rot := a.Lens()
	assert.Equal(t, []int{1, 1, 1}, []int{accel, gyro, rot})
}

func TestAlignAllOrNothing(t *testing.T) {
	a := NewAligner(StampOwn)
	p1 := packet(1.0, 1)
	p2 := packet(2.0, 2)
	// Orientation stream lags behind the query.
	p2.Rotation.Timestamp = 1.2
	a.Ingest(Batch{Packets: []Packet{p1, p2}})

	_, ok := a.Align(1.5)
	assert.False(t, ok)

	accel, gyro, rot := a.Lens()
	assert.Equal(t, []int{2, 2, 2}, []int{accel, gyro, rot}, "not-ready cycle must not evict")
}

func TestAlignEmpty(t *testing.T) {
	a := NewAligner(StampGyro)
	_, ok := a.Align(0)
	assert.False(t, ok)
}

func TestStampPolicyGyroKeysRotationByGyro(t *testing.T) {
	a := NewAligner(StampGyro)
	p := packet(1.0, 1)
	p.Rotation.Timestamp = 0.2
	a.Ingest(Batch{Packets: []Packet{p}})

	got, ok := a.Align(1.0)
	require.True(t, ok)
	assert.Equal(t, quat.Number{Real: 1}, got.Rotation)

	b := NewAligner(StampOwn)
	b.Ingest(Batch{Packets: []Packet{p}})
	_, ok = b.Align(1.0)
	assert.False(t, ok, "own stamp 0.2 does not cover 1.0")
}

func TestParseStampPolicy(t *testing.T) {
	p, err := ParseStampPolicy("own")
	require.NoError(t, err)
	assert.Equal(t, StampOwn, p)

	p, err = ParseStampPolicy("")
	require.NoError(t, err)
	assert.Equal(t, StampGyro, p)

	_, err = ParseStampPolicy("accel")
	assert.Error(t, err)
}

func TestIngestConcurrentWithAlign(t *testing.T) {
	a := NewAligner(StampGyro)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			a.Ingest(Batch{Packets: []Packet{packet(float64(i)*0.001, float64(i))}})
		}
	}()

	last := -1.0
	for i := 0; i < n/10; i++ {
		q := float64(i) * 0.01
		if got, ok := a.Align(q); ok {
			assert.GreaterOrEqual(t, got.Accel.Z, last)
			last = got.Accel.Z
		}
	}
	wg.Wait()
}
