// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package timebuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys[T any](b *Buffer[T]) []float64 {
	out := make([]float64, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		out = append(out, b.At(i).Key)
	}
	return out
}

func TestInsertAppendsInOrder(t *testing.T) {
	b := New[int](4)
	b.Insert(1.0, 10)
	b.Insert(2.0, 20)
	b.Insert(3.0, 30)

	assert.Equal(t, []float64{1, 2, 3}, keys(b))
	newest, ok := b.Newest()
	require.True(t, ok)
	assert.Equal(t, 3.0, newest)
	oldest, ok := b.Oldest()
	require.True(t, ok)
	assert.Equal(t, 1.0, oldest)
}

func TestInsertRepeatedKeyOverwrites(t *testing.T) {
	b := New[int](4)
	b.Insert(1.0, 10)
	b.Insert(2.0, 20)
	b.Insert(2.0, 21)
	b.Insert(1.0, 11)

	require.Equal(t, 2, b.Len())
	assert.Equal(t, 11, b.At(0).Value)
	assert.Equal(t, 21, b.At(1).Value)
}

func TestInsertOutOfOrderKeepsSorted(t *testing.T) {
	b := New[int](4)
	b.Insert(3.0, 30)
	b.Insert(1.0, 10)
	b.Insert(2.0, 20)

	assert.Equal(t, []float64{1, 2, 3}, keys(b))
}

func TestLowerBound(t *testing.T) {
	b := New[int](4)
	b.Insert(1.0, 10)
	b.Insert(2.0, 20)
	b.Insert(3.0, 30)

	tests := []struct {
		query float64
		want  int
	}{
		{0.5, 0},
		{1.0, 0},
		{1.5, 1},
		{3.0, 2},
		{3.5, 3},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, b.LowerBound(tc.query), "LowerBound(%v)", tc.query)
	}
}

func TestErasePrefix(t *testing.T) {
	b := New[int](4)
	for i := 1; i <= 4; i++ {
		b.Insert(float64(i), i)
	}

	b.ErasePrefix(0)
	assert.Equal(t, 4, b.Len())

	b.ErasePrefix(2)
	assert.Equal(t, []float64{3, 4}, keys(b))

	b.ErasePrefix(10)
	assert.Equal(t, 0, b.Len())
	_, ok := b.Newest()
	assert.False(t, ok)
}

func TestCovers(t *testing.T) {
	b := New[int](2)
	assert.False(t, b.Covers(1.0), "empty buffer")

	b.Insert(1.0, 1)
	assert.True(t, b.Covers(0.5))
	assert.True(t, b.Covers(1.0))
	assert.False(t, b.Covers(1.01))
}
