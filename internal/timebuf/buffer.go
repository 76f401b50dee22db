// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package timebuf holds timestamp-keyed sample buffers and the interpolation
// used to read them at an arbitrary query time.
package timebuf

import "sort"

// Entry is one sample stored under its device timestamp (seconds).
type Entry[T any] struct {
	Key   float64
	Value T
}

// Buffer is an ordered store of samples keyed by timestamp.
// It is not safe for concurrent use; owners provide their own locking.
type Buffer[T any] struct {
	entries []Entry[T]

	// horizon is the latest query time resolved against the buffer. Queries
	// older than it predate what the buffer still retains.
	horizon    float64
	hasHorizon bool
}

// New returns an empty buffer with room for capacity samples.
func New[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{entries: make([]Entry[T], 0, capacity)}
}

// Insert stores value under key. Producers emit in time order, so the common
// case is an append. A repeated key overwrites the value stored at that key.
func (b *Buffer[T]) Insert(key float64, value T) {
	n := len(b.entries)
	if n == 0 || b.entries[n-1].Key < key {
		b.entries = append(b.entries, Entry[T]{Key: key, Value: value})
		return
	}

	i := b.LowerBound(key)
	if i < n && b.entries[i].Key == key {
		b.entries[i].Value = value
		return
	}
	b.entries = append(b.entries, Entry[T]{})
	copy(b.entries[i+1:], b.entries[i:])
	b.entries[i] = Entry[T]{Key: key, Value: value}
}

// LowerBound returns the index of the first entry with key >= t, or Len()
// when every key is smaller.
func (b *Buffer[T]) LowerBound(t float64) int {
	return sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Key >= t
	})
}

// ErasePrefix drops every entry before index i and keeps i onward.
func (b *Buffer[T]) ErasePrefix(i int) {
	if i <= 0 {
		return
	}
	if i >= len(b.entries) {
		clear(b.entries)
		b.entries = b.entries[:0]
		return
	}
	// Shift down so the backing array is reused across append/evict cycles.
	n := copy(b.entries, b.entries[i:])
	clear(b.entries[n:])
	b.entries = b.entries[:n]
}

// At returns the entry at index i.
func (b *Buffer[T]) At(i int) Entry[T] {
	return b.entries[i]
}

// Len returns the number of retained samples.
func (b *Buffer[T]) Len() int {
	return len(b.entries)
}

// Newest returns the largest key, or false for an empty buffer.
func (b *Buffer[T]) Newest() (float64, bool) {
	if len(b.entries) == 0 {
		return 0, false
	}
	return b.entries[len(b.entries)-1].Key, true
}

// Oldest returns the smallest key, or false for an empty buffer.
func (b *Buffer[T]) Oldest() (float64, bool) {
	if len(b.entries) == 0 {
		return 0, false
	}
	return b.entries[0].Key, true
}

// Covers reports whether the buffer holds history reaching t. An empty
// buffer, or one whose newest key is older than t, is not ready.
func (b *Buffer[T]) Covers(t float64) bool {
	newest, ok := b.Newest()
	return ok && newest >= t
}
