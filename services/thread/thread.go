// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package thread contains the per-item and per-thread controllers of
// the filtering engine. A ThreadController keeps one main item and a
// dynamic set of reply items synchronized with an external change feed;
// each ItemController runs the fetch → classify → decide pipeline for
// one content item, guarded against superseding updates by a
// generation ticket.
//
// # Failure Semantics
//
// Errors never cross item boundaries: a failed pipeline leaves its item
// in the last-known visibility state and siblings untouched. Anchor and
// oracle failures are logged only when debug logging is enabled;
// ErrStaleRequest is always swallowed silently. Nothing is retried;
// the next externally-triggered refresh is the retry.
package thread

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/threadlens/services/classify"
	"github.com/AleutianAI/threadlens/services/filter"
)

// DefaultSettleDelay is the one-shot wait before the first hide of a
// content version. It papers over the host application's own render
// latency; the exact constant is configurable, not load-bearing.
const DefaultSettleDelay = 300 * time.Millisecond

// Anchor is an opaque stable handle onto one content item in the
// externally-owned document. Implementations report ErrAnchorNotFound
// once the underlying item has drifted away.
type Anchor interface {
	// ID identifies the anchor for the lifetime of its item.
	ID() string

	// Text returns the item's current raw text content.
	Text() (string, error)

	// SetHidden applies the visibility verdict to the host document.
	SetHidden(hidden bool) error
}

// ChildEvent is one batch of structural changes under a parent anchor.
type ChildEvent struct {
	Added   []Anchor
	Removed []Anchor
}

// Feed is the external change-notification boundary. It delivers
// discrete "content mutated" and "children added/removed" events with
// no back-pressure guarantee, and can synchronously enumerate the
// current children of an anchor.
type Feed interface {
	// SubscribeContent registers fn for content mutations of anchor.
	// The returned function cancels the subscription.
	SubscribeContent(anchor Anchor, fn func()) (func(), error)

	// SubscribeChildren registers fn for structural changes below
	// anchor. The returned function cancels the subscription.
	SubscribeChildren(anchor Anchor, fn func(ChildEvent)) (func(), error)

	// Children enumerates the current child anchors of anchor.
	Children(anchor Anchor) ([]Anchor, error)
}

// Runtime bundles the shared collaborators the orchestrator owns:
// the single settings instance, the global enabled flag, the shared
// result cache and the classification oracle. Controllers only read
// through it.
type Runtime interface {
	Settings() *filter.Settings
	Enabled() bool
	Cache() *classify.ResultCache
	Oracle() classify.Oracle
}

// Options tunes controller behavior. The zero value is usable.
type Options struct {
	// SettleDelay overrides DefaultSettleDelay. Negative disables the
	// wait entirely.
	SettleDelay time.Duration

	// Clock defaults to the system clock.
	Clock Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Debug enables logging of anchor and oracle failures.
	Debug bool
}

func (o Options) withDefaults() Options {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.Clock == nil {
		o.Clock = SystemClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Controller owns one thread: one main item plus a dynamic collection
// of reply items, kept in sync with the feed's structural events.
type Controller struct {
	id   string
	feed Feed
	rt   Runtime
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	main          *Item
	replies       map[string]*Item
	replyFeedOpen bool
	cancelContent func()
	cancelKids    func()
	destroyed     bool
}

// NewController builds the controller for one thread rooted at
// mainAnchor. Call RefreshMain to populate it.
func NewController(mainAnchor Anchor, feed Feed, rt Runtime, opts Options) *Controller {
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Controller{
		id:      id,
		feed:    feed,
		rt:      rt,
		opts:    opts,
		log:     opts.Logger.With("thread_id", id),
		main:    NewItem(mainAnchor, false, rt, opts),
		replies: make(map[string]*Item),
	}
}

// ID returns the controller's stable identifier.
func (c *Controller) ID() string {
	return c.id
}

// Main exposes the main item controller.
func (c *Controller) Main() *Item {
	return c.main
}

// RefreshMain re-observes the main item's change feed, runs its full
// pipeline, and rebuilds the reply set. Existing reply controllers are
// always torn down; fresh ones are created only when the main item
// ended up visible. A hidden main item lazily regains replies when the
// feed later reports insertions.
func (c *Controller) RefreshMain(ctx context.Context) bool {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	c.observe()

	hidden, err := c.main.RefreshAll(ctx)
	if err != nil {
		c.logFailure("main item refresh failed", err)
	}

	c.mu.Lock()
	olds := c.replies
	c.replies = make(map[string]*Item)
	c.mu.Unlock()
	for _, reply := range olds {
		reply.Destroy()
	}

	if hidden {
		return true
	}

	children, err := c.feed.Children(c.main.Anchor())
	if err != nil {
		c.logFailure("reply enumeration failed", err)
		return hidden
	}

	created := make([]*Item, 0, len(children))
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return hidden
	}
	for _, child := range children {
		item := NewItem(child, true, c.rt, c.opts)
		c.replies[child.ID()] = item
		created = append(created, item)
	}
	c.mu.Unlock()

	// Refresh replies concurrently; one failing sibling never aborts
	// the rest, so every goroutine reports nil to the group.
	var g errgroup.Group
	for _, reply := range created {
		g.Go(func() error {
			if _, err := reply.RefreshAll(ctx); err != nil {
				c.logFailure("reply refresh failed", err)
			}
			return nil
		})
	}
	g.Wait()
	return hidden
}

// RefreshFilter re-decides visibility for every live item using the
// already-stored classifications. It reports whether any item's visual
// state changed, which feeds the aggregate hidden-count display.
func (c *Controller) RefreshFilter(ctx context.Context) bool {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return false
	}
	replies := make([]*Item, 0, len(c.replies))
	for _, r := range c.replies {
		replies = append(replies, r)
	}
	c.mu.Unlock()

	mainBefore := c.main.Hidden()
	mainHidden, err := c.main.RefreshFilter(ctx)
	if err != nil {
		c.logFailure("main filter refresh failed", err)
	}
	var changed atomic.Bool
	changed.Store(mainBefore != mainHidden)

	if mainHidden {
		return changed.Load()
	}

	var g errgroup.Group
	for _, reply := range replies {
		g.Go(func() error {
			before := reply.Hidden()
			after, err := reply.RefreshFilter(ctx)
			if err != nil {
				c.logFailure("reply filter refresh failed", err)
				return nil
			}
			if before != after {
				changed.Store(true)
			}
			return nil
		})
	}
	g.Wait()
	return changed.Load()
}

// HandleChildren reacts to one structural-change batch: removed anchors
// lose their controllers, added anchors gain one and are refreshed in
// the background.
func (c *Controller) HandleChildren(ev ChildEvent) {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	for _, gone := range ev.Removed {
		if item, ok := c.replies[gone.ID()]; ok {
			item.Destroy()
			delete(c.replies, gone.ID())
		}
	}
	created := make([]*Item, 0, len(ev.Added))
	for _, added := range ev.Added {
		if _, ok := c.replies[added.ID()]; ok {
			continue
		}
		item := NewItem(added, true, c.rt, c.opts)
		c.replies[added.ID()] = item
		created = append(created, item)
	}
	c.mu.Unlock()

	for _, item := range created {
		go func() {
			if _, err := item.RefreshAll(context.Background()); err != nil {
				c.logFailure("inserted reply refresh failed", err)
			}
		}()
	}
}

// HiddenCount reports how many of the thread's items are hidden.
func (c *Controller) HiddenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	if c.main.Hidden() {
		count++
	}
	for _, reply := range c.replies {
		if reply.Hidden() {
			count++
		}
	}
	return count
}

// ReplyFeedOpen reports whether the structural-change subscription for
// replies is live.
func (c *Controller) ReplyFeedOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyFeedOpen
}

// ItemCount reports how many items the thread currently tracks.
func (c *Controller) ItemCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return 1 + len(c.replies)
}

// Destroy permanently tears the thread down: subscriptions cancelled,
// every item guard destroyed. Idempotent.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	cancelContent, cancelKids := c.cancelContent, c.cancelKids
	c.cancelContent, c.cancelKids = nil, nil
	replies := c.replies
	c.replies = make(map[string]*Item)
	c.mu.Unlock()

	if cancelContent != nil {
		cancelContent()
	}
	if cancelKids != nil {
		cancelKids()
	}
	c.main.Destroy()
	for _, reply := range replies {
		reply.Destroy()
	}
}

// observe (re)subscribes to the main item's content mutations and to
// structural changes below it.
func (c *Controller) observe() {
	c.mu.Lock()
	cancelContent, cancelKids := c.cancelContent, c.cancelKids
	c.cancelContent, c.cancelKids = nil, nil
	c.mu.Unlock()
	if cancelContent != nil {
		cancelContent()
	}
	if cancelKids != nil {
		cancelKids()
	}

	anchor := c.main.Anchor()
	content, err := c.feed.SubscribeContent(anchor, func() {
		if _, err := c.main.RefreshAll(context.Background()); err != nil {
			c.logFailure("main mutation refresh failed", err)
		}
	})
	if err != nil {
		c.logFailure("content subscription failed", err)
	}
	kids, err := c.feed.SubscribeChildren(anchor, c.HandleChildren)
	if err != nil {
		c.logFailure("children subscription failed", err)
	}

	c.mu.Lock()
	c.cancelContent, c.cancelKids = content, kids
	c.replyFeedOpen = kids != nil
	c.mu.Unlock()
}

// logFailure logs external failures when debug logging is on. Stale
// tickets are not failures and never reach here (the items swallow
// them), but guard anyway.
func (c *Controller) logFailure(msg string, err error) {
	if err == nil || errors.Is(err, ErrStaleRequest) {
		return
	}
	if c.opts.Debug {
		c.log.Debug(msg, "error", err)
	}
}
