// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package queue provides the bounded pull queues that sit between stream
// producers (MQTT handlers, device readers) and the fusion loop.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Get once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO. Push never blocks: when the queue is full the
// oldest element is dropped to make room.
type Queue[T any] struct {
	ch      chan T
	done    chan struct{}
	once    sync.Once
	pushMu  sync.Mutex
	dropped atomic.Uint64
}

// New returns a queue holding at most size elements (minimum 1).
func New[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		ch:   make(chan T, size),
		done: make(chan struct{}),
	}
}

// Push enqueues v, evicting the oldest element if the queue is full. Pushes
// after Close are discarded.
func (q *Queue[T]) Push(v T) {
	q.pushMu.Lock()
	defer q.pushMu.Unlock()

	select {
	case <-q.done:
		return
	default:
	}

	for {
		select {
		case q.ch <- v:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// Get blocks until an element is available, ctx is done, or the queue is
// closed and empty.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	default:
	}

	var zero T
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		select {
		case v := <-q.ch:
			return v, nil
		default:
			return zero, ErrClosed
		}
	}
}

// TryGet returns the next element without blocking.
func (q *Queue[T]) TryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of queued elements.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Dropped returns how many elements were evicted by Push.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

// Close wakes blocked readers. Elements already queued can still be read.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}
