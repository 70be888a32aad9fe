// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package queue

import "sync"

// FIFO is an unbounded first-in first-out queue safe for concurrent
// use. Items pushed by one goroutine are popped in the order that
// goroutine pushed them; pushes from different goroutines are ordered
// by the time each acquired the internal lock.
type FIFO[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	notify chan struct{}
}

// New returns an empty open FIFO.
func New[T any]() *FIFO[T] {
	return &FIFO[T]{notify: make(chan struct{}, 1)}
}

// Push appends item. It returns false, dropping the item, if the FIFO
// has been closed.
func (q *FIFO[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, item)

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the oldest item. The second result is
// false when the FIFO is empty or closed.
func (q *FIFO[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.closed || q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero // release for GC
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		clear(q.items[remaining:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return item, true
}

// Len returns the number of queued items. A closed FIFO has length 0.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	return len(q.items) - q.head
}

// Close seals the FIFO and discards anything still queued. It returns
// the number of items discarded. Closing twice is a no-op.
func (q *FIFO[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	discarded := len(q.items) - q.head
	q.items = nil
	q.head = 0
	return discarded
}

// Closed reports whether Close has been called.
func (q *FIFO[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Notify returns a channel that receives a signal (at most one pending)
// after a Push. Consumers that prefer waking on arrival over a fixed
// poll can select on it.
func (q *FIFO[T]) Notify() <-chan struct{} {
	return q.notify
}
