// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thread

import (
	"errors"
	"testing"
)

func TestGuardBeginVerify(t *testing.T) {
	var g Guard

	t1 := g.Begin()
	if t1 != 1 {
		t.Fatalf("first ticket = %d, want 1", t1)
	}
	if err := g.Verify(t1); err != nil {
		t.Fatalf("fresh ticket should verify: %v", err)
	}

	t2 := g.Begin()
	if t2 != 2 {
		t.Fatalf("second ticket = %d, want 2", t2)
	}
	if err := g.Verify(t1); !errors.Is(err, ErrStaleRequest) {
		t.Errorf("superseded ticket Verify = %v, want ErrStaleRequest", err)
	}
	if err := g.Verify(t2); err != nil {
		t.Errorf("current ticket should verify: %v", err)
	}
}

func TestGuardWrapsAtLimit(t *testing.T) {
	var g Guard
	g.gen.Store(generationLimit)

	if got := g.Begin(); got != 1 {
		t.Errorf("Begin past limit = %d, want wrap to 1", got)
	}
}

func TestGuardDestroy(t *testing.T) {
	var g Guard
	ticket := g.Begin()

	g.Destroy()
	if !g.Destroyed() {
		t.Fatal("guard should report destroyed")
	}
	if err := g.Verify(ticket); !errors.Is(err, ErrStaleRequest) {
		t.Error("tickets never verify after Destroy")
	}

	// Begin must not resurrect a destroyed guard.
	dead := g.Begin()
	if err := g.Verify(dead); !errors.Is(err, ErrStaleRequest) {
		t.Error("tickets minted after Destroy must never verify")
	}
	if !g.Destroyed() {
		t.Error("Begin must not clear the destroyed state")
	}

	// Idempotent.
	g.Destroy()
	if !g.Destroyed() {
		t.Error("repeated Destroy should keep the sentinel")
	}
}

func TestGuardCurrent(t *testing.T) {
	var g Guard
	if g.Current() != 0 {
		t.Errorf("zero guard Current = %d, want 0", g.Current())
	}
	ticket := g.Begin()
	if g.Current() != ticket {
		t.Errorf("Current = %d, want %d", g.Current(), ticket)
	}
	g.Destroy()
	if g.Current() != destroyedGeneration {
		t.Errorf("Current after Destroy = %d, want sentinel", g.Current())
	}
}
