// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thread

import "sync/atomic"

const (
	// generationLimit bounds the counter; Begin wraps back to 1 past it
	// so the generation never grows without bound.
	generationLimit = 1_000_000_000

	// destroyedGeneration is the sentinel that no ticket ever matches.
	destroyedGeneration = -1
)

// Guard makes a multi-step asynchronous pipeline safe against being
// superseded, without cancellation primitives. Begin mints a ticket for
// one pipeline run; every step calls Verify before doing observable
// work and aborts on ErrStaleRequest. Superseded work keeps running but
// its output is discarded at the next Verify. Cooperative, strict
// last-writer-wins per item in O(1) space.
//
// The zero value is ready to use. Safe for concurrent use.
type Guard struct {
	gen atomic.Int64
}

// Begin increments the generation and returns the new value as the
// ticket for one pipeline run. On a destroyed guard it returns a ticket
// that can never verify, so the caller's pipeline aborts at its first
// Verify instead of resurrecting the item.
func (g *Guard) Begin() int64 {
	for {
		current := g.gen.Load()
		if current == destroyedGeneration {
			return 0
		}
		next := current + 1
		if next > generationLimit {
			next = 1
		}
		if g.gen.CompareAndSwap(current, next) {
			return next
		}
	}
}

// Verify fails with ErrStaleRequest when ticket is no longer the
// current generation.
func (g *Guard) Verify(ticket int64) error {
	if g.gen.Load() != ticket {
		return ErrStaleRequest
	}
	return nil
}

// Current returns the current generation without minting a ticket.
// Used by the cheap refresh path, which re-decides under whatever
// generation is live and therefore cannot invalidate itself.
func (g *Guard) Current() int64 {
	return g.gen.Load()
}

// Destroy permanently disables the guard. Idempotent; no future Begin
// or Verify will ever succeed again.
func (g *Guard) Destroy() {
	g.gen.Store(destroyedGeneration)
}

// Destroyed reports whether Destroy has been called.
func (g *Guard) Destroyed() bool {
	return g.gen.Load() == destroyedGeneration
}
