// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timebuf

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// LerpFunc blends a toward b by frac in [0, 1].
type LerpFunc[T any] func(a, b T, frac float64) T

// Resolve reads the buffer at query time t.
//
//   - empty buffer, or newest key < t: not ok, nothing evicted
//   - exact key match, or no predecessor: the sample at/after t
//   - bracketed by two samples: linear interpolation between them
//   - t older than history already evicted by an earlier query: not ok
//
// Every call that gets past the freshness check evicts all samples before the
// first one at/after t, whatever the outcome.
func Resolve[T any](buf *Buffer[T], t float64, lerp LerpFunc[T]) (T, bool) {
	var zero T
	if !buf.Covers(t) {
		return zero, false
	}

	bi := buf.LowerBound(t)
	ai := bi
	if ai > 0 {
		ai--
	}
	b := buf.entries[bi]
	a := buf.entries[ai]

	var (
		value T
		ok    bool
	)
	switch {
	case buf.hasHorizon && t < buf.horizon:
		// Query predates retained history.
	case ai == bi || t == b.Key:
		value, ok = b.Value, true
	case a.Key < t && t < b.Key:
		frac := (t - a.Key) / (b.Key - a.Key)
		value, ok = lerp(a.Value, b.Value, frac), true
	}

	buf.ErasePrefix(bi)
	if !buf.hasHorizon || t > buf.horizon {
		buf.horizon = t
		buf.hasHorizon = true
	}
	return value, ok
}

// LerpVector interpolates each component of a 3-vector.
func LerpVector(a, b r3.Vector, frac float64) r3.Vector {
	return a.Add(b.Sub(a).Mul(frac))
}

// LerpQuat interpolates the four quaternion components independently. The
// result is not renormalised; callers that need a unit rotation normalise it.
func LerpQuat(a, b quat.Number, frac float64) quat.Number {
	return quat.Add(a, quat.Scale(frac, quat.Sub(b, a)))
}
