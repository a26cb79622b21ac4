// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AleutianAI/threadlens/services/classify"
	"github.com/AleutianAI/threadlens/services/filter"
)

// memAnchor is an in-memory Anchor recording every visibility apply.
type memAnchor struct {
	id string

	mu       sync.Mutex
	text     string
	hidden   bool
	detached bool
	applies  int
}

func newMemAnchor(id, text string) *memAnchor {
	return &memAnchor{id: id, text: text}
}

func (a *memAnchor) ID() string { return a.id }

func (a *memAnchor) Text() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached {
		return "", ErrAnchorNotFound
	}
	return a.text, nil
}

func (a *memAnchor) SetHidden(hidden bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.detached {
		return ErrAnchorNotFound
	}
	a.hidden = hidden
	a.applies++
	return nil
}

func (a *memAnchor) setText(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.text = text
}

func (a *memAnchor) isHidden() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hidden
}

func (a *memAnchor) applyCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applies
}

func (a *memAnchor) detach() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detached = true
}

// memFeed is an in-memory Feed the tests drive by hand.
type memFeed struct {
	mu          sync.Mutex
	children    map[string][]Anchor
	contentSubs map[string][]func()
	childSubs   map[string][]func(ChildEvent)
}

func newMemFeed() *memFeed {
	return &memFeed{
		children:    make(map[string][]Anchor),
		contentSubs: make(map[string][]func()),
		childSubs:   make(map[string][]func(ChildEvent)),
	}
}

func (f *memFeed) SubscribeContent(anchor Anchor, fn func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentSubs[anchor.ID()] = append(f.contentSubs[anchor.ID()], fn)
	return func() {}, nil
}

func (f *memFeed) SubscribeChildren(anchor Anchor, fn func(ChildEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.childSubs[anchor.ID()] = append(f.childSubs[anchor.ID()], fn)
	return func() {}, nil
}

func (f *memFeed) Children(anchor Anchor) ([]Anchor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Anchor(nil), f.children[anchor.ID()]...), nil
}

func (f *memFeed) setChildren(parent string, anchors ...Anchor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent] = anchors
}

func (f *memFeed) fireContent(parent string) {
	f.mu.Lock()
	subs := append([]func(){}, f.contentSubs[parent]...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
}

func (f *memFeed) fireChildren(parent string, ev ChildEvent) {
	f.mu.Lock()
	subs := append([]func(ChildEvent){}, f.childSubs[parent]...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// fakeClock delivers After channels only when the test advances time.
type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	waiters    []clockWaiter
	afterCalls int
}

type clockWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterCalls++
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, clockWaiter{deadline: c.now.Add(d), ch: ch})
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	var pending []clockWaiter
	for _, w := range c.waiters {
		if !w.deadline.After(c.now) {
			w.ch <- c.now
		} else {
			pending = append(pending, w)
		}
	}
	c.waiters = pending
}

func (c *fakeClock) waiterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *fakeClock) afterCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.afterCalls
}

// scriptedOracle serves canned distributions and can hold a
// classification open until the test releases it, to simulate oracle
// calls resolving out of submission order.
type scriptedOracle struct {
	mu      sync.Mutex
	scripts map[string]*classify.Result
	calls   atomic.Int64
	gates   map[string]chan struct{}
	started map[string]chan struct{}
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{
		scripts: make(map[string]*classify.Result),
		gates:   make(map[string]chan struct{}),
		started: make(map[string]chan struct{}),
	}
}

func (o *scriptedOracle) script(text string, scores ...classify.LanguageScore) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scripts[text] = &classify.Result{Reliable: true, Languages: scores}
}

// gate makes Classify(text) block until release(text); the returned
// channel closes once the classification has started.
func (o *scriptedOracle) gate(text string) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gates[text] = make(chan struct{})
	o.started[text] = make(chan struct{})
	return o.started[text]
}

func (o *scriptedOracle) release(text string) {
	o.mu.Lock()
	gate := o.gates[text]
	delete(o.gates, text)
	o.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (o *scriptedOracle) Classify(ctx context.Context, text string) (*classify.Result, error) {
	o.calls.Add(1)
	o.mu.Lock()
	gate := o.gates[text]
	started := o.started[text]
	result := o.scripts[text]
	o.mu.Unlock()

	if started != nil {
		close(started)
		o.mu.Lock()
		delete(o.started, text)
		o.mu.Unlock()
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if result == nil {
		return nil, fmt.Errorf("%w: no script for %q", classify.ErrOracleUnavailable, text)
	}
	return result, nil
}

func (o *scriptedOracle) callCount() int64 {
	return o.calls.Load()
}

// fakeRuntime is the orchestrator stand-in for controller tests.
type fakeRuntime struct {
	mu       sync.RWMutex
	settings *filter.Settings
	enabled  atomic.Bool
	cache    *classify.ResultCache
	oracle   classify.Oracle
}

func newFakeRuntime(t *testing.T, oracle classify.Oracle) *fakeRuntime {
	t.Helper()
	t.Setenv("LC_ALL", "en_US.UTF-8")
	rt := &fakeRuntime{
		settings: filter.NewSettings(),
		cache:    classify.NewResultCache(64),
		oracle:   oracle,
	}
	rt.enabled.Store(true)
	return rt
}

func (rt *fakeRuntime) Settings() *filter.Settings {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.settings
}

func (rt *fakeRuntime) swapSettings(s *filter.Settings) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.settings = s
}

func (rt *fakeRuntime) Enabled() bool                { return rt.enabled.Load() }
func (rt *fakeRuntime) Cache() *classify.ResultCache { return rt.cache }
func (rt *fakeRuntime) Oracle() classify.Oracle      { return rt.oracle }

// immediateOptions removes the settle delay so straight-line tests do
// not need a clock.
func immediateOptions() Options {
	return Options{SettleDelay: -1}
}
