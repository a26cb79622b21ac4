// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"errors"
	"testing"
)

func TestEvictionQueueOrder(t *testing.T) {
	q := newEvictionQueue(3)
	for _, fp := range []uint32{10, 20, 30} {
		if err := q.push(fp); err != nil {
			t.Fatalf("push(%d): %v", fp, err)
		}
	}
	if err := q.push(40); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("push on full queue = %v, want ErrQueueFull", err)
	}

	for _, want := range []uint32{10, 20, 30} {
		got, ok := q.pop()
		if !ok || got != want {
			t.Fatalf("pop() = %d,%v, want %d", got, ok, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue should report empty")
	}
}

func TestEvictionQueueWrapAround(t *testing.T) {
	q := newEvictionQueue(2)
	q.push(1)
	q.push(2)
	q.pop()
	// head has advanced; the ring must wrap cleanly.
	if err := q.push(3); err != nil {
		t.Fatalf("push after pop: %v", err)
	}
	if got, _ := q.pop(); got != 2 {
		t.Errorf("pop() = %d, want 2", got)
	}
	if got, _ := q.pop(); got != 3 {
		t.Errorf("pop() = %d, want 3", got)
	}
}

func TestEvictionQueueClear(t *testing.T) {
	q := newEvictionQueue(2)
	q.push(1)
	q.push(2)
	q.clear()
	if q.len() != 0 {
		t.Errorf("len after clear = %d", q.len())
	}
	if err := q.push(9); err != nil {
		t.Errorf("push after clear: %v", err)
	}
}
