// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import "errors"

// ErrQueueFull is returned by evictionQueue.push when the ring has no
// free slot. The cache evicts before inserting, so seeing this error
// means the cache bookkeeping is broken.
var ErrQueueFull = errors.New("eviction queue is full")

// evictionQueue records fingerprint insertion order for the cache. It
// is a fixed-size ring buffer: pop returns the oldest fingerprint,
// never reordering on reads, which is what gives the cache its FIFO
// (not LRU) eviction behavior.
//
// Not safe for concurrent use; the owning cache serializes access.
type evictionQueue struct {
	buf  []uint32
	head int // index of the oldest entry
	size int
}

func newEvictionQueue(capacity int) *evictionQueue {
	return &evictionQueue{buf: make([]uint32, capacity)}
}

// push appends a fingerprint behind the newest entry.
func (q *evictionQueue) push(fp uint32) error {
	if q.size == len(q.buf) {
		return ErrQueueFull
	}
	q.buf[(q.head+q.size)%len(q.buf)] = fp
	q.size++
	return nil
}

// pop removes and returns the oldest fingerprint. The second return is
// false when the queue is empty.
func (q *evictionQueue) pop() (uint32, bool) {
	if q.size == 0 {
		return 0, false
	}
	fp := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return fp, true
}

func (q *evictionQueue) len() int {
	return q.size
}

func (q *evictionQueue) clear() {
	q.head = 0
	q.size = 0
}
