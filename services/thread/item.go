// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package thread

import (
	"context"
	"errors"
	"sync"

	"github.com/AleutianAI/threadlens/services/classify"
	"github.com/AleutianAI/threadlens/services/filter"
)

// Item owns one content item's lifecycle: fetch text, classify through
// the shared cache and oracle, decide visibility, apply it to the
// anchor. Active until Destroy; destruction is irreversible.
//
// All pipeline steps re-validate their generation ticket, so for any
// one item only the most recently begun pipeline can complete visible
// effects, even when oracle calls resolve out of submission order.
type Item struct {
	guard   Guard
	anchor  Anchor
	isReply bool
	rt      Runtime
	opts    Options

	mu                 sync.Mutex
	lastText           string
	renderedWaitedOnce bool
	lastClassification *classify.Result
	hidden             bool
}

// NewItem creates the controller for one content item. isReply marks
// reply items, which the reply-inclusion setting can exempt from
// filtering.
func NewItem(anchor Anchor, isReply bool, rt Runtime, opts Options) *Item {
	return &Item{
		anchor:  anchor,
		isReply: isReply,
		rt:      rt,
		opts:    opts.withDefaults(),
	}
}

// Anchor returns the item's document handle.
func (it *Item) Anchor() Anchor {
	return it.anchor
}

// IsReply reports whether this item is a reply.
func (it *Item) IsReply() bool {
	return it.isReply
}

// Hidden reports the item's current visibility verdict.
func (it *Item) Hidden() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.hidden
}

// Destroyed reports whether the item has been torn down.
func (it *Item) Destroyed() bool {
	return it.guard.Destroyed()
}

// Destroy permanently disables the item. In-flight pipelines abort at
// their next ticket check. Idempotent.
func (it *Item) Destroy() {
	it.guard.Destroy()
}

// RefreshAll runs the full pipeline: fetch and normalize the current
// text, classify it (cache first, oracle on miss), store the result
// and apply the visibility decision. It returns the hide verdict.
//
// A pipeline superseded at any step resolves to (false, nil), a
// silent no-op rather than an error. All other failures propagate for the
// caller to log and swallow; the item keeps its last-known visibility.
func (it *Item) RefreshAll(ctx context.Context) (bool, error) {
	ticket := it.guard.Begin()
	hidden, err := it.runPipeline(ctx, ticket)
	if errors.Is(err, ErrStaleRequest) {
		return false, nil
	}
	return hidden, err
}

// RefreshFilter re-runs only decide-and-apply on the already-stored
// classification, under the current generation. Because it does not
// mint a ticket it cannot invalidate itself, but it still aborts once
// the item has been destroyed.
func (it *Item) RefreshFilter(ctx context.Context) (bool, error) {
	ticket := it.guard.Current()
	if ticket == destroyedGeneration {
		return false, nil
	}
	hidden, err := it.applyVisibility(ctx, ticket)
	if errors.Is(err, ErrStaleRequest) {
		return false, nil
	}
	return hidden, err
}

func (it *Item) runPipeline(ctx context.Context, ticket int64) (bool, error) {
	// Step 1: fetch and normalize. A changed text starts a fresh
	// content version: the settle delay re-arms and the stored
	// classification is stale.
	if err := it.guard.Verify(ticket); err != nil {
		return false, err
	}
	raw, err := it.anchor.Text()
	if err != nil {
		return false, err
	}
	text := filter.NormalizeWhitespace(raw)

	it.mu.Lock()
	if text != it.lastText {
		it.lastText = text
		it.renderedWaitedOnce = false
		it.lastClassification = nil
	}
	it.mu.Unlock()

	// Step 2: classify, memoized by fingerprint. The oracle call is a
	// suspension point, so the ticket is re-checked around it.
	if err := it.guard.Verify(ticket); err != nil {
		return false, err
	}
	fp := classify.Fingerprint(text)
	result := it.rt.Cache().Get(fp)
	if result == nil {
		result, err = it.rt.Oracle().Classify(ctx, text)
		if err != nil {
			return false, err
		}
		it.rt.Cache().Put(fp, result)
	}

	// Step 3: store the classification.
	if err := it.guard.Verify(ticket); err != nil {
		return false, err
	}
	it.mu.Lock()
	it.lastClassification = result
	it.mu.Unlock()

	// Step 4: decide and apply.
	return it.applyVisibility(ctx, ticket)
}

// applyVisibility computes the hide verdict from the stored
// classification and the current settings, then applies it to the
// anchor if it changed.
//
// The first hide of a content version waits the settle delay before
// touching the anchor, letting the host finish its own rendering; the
// wait is consumed once per content version and is not re-incurred by
// later toggles. The internal hidden flag is updated before the
// delayed effect, and the ticket is re-verified after the wait since
// the item may have been superseded meanwhile.
func (it *Item) applyVisibility(ctx context.Context, ticket int64) (bool, error) {
	it.mu.Lock()
	text := it.lastText
	result := it.lastClassification
	wasHidden := it.hidden
	waited := it.renderedWaitedOnce
	it.mu.Unlock()

	settings := it.rt.Settings()
	shouldHide := it.rt.Enabled() && result != nil
	if shouldHide {
		if it.isReply && !settings.FilterReplies() {
			shouldHide = false
		} else {
			shouldHide = settings.ShouldFilterByLanguage(result) || settings.ShouldFilterByWord(text)
		}
	}

	if shouldHide == wasHidden {
		return shouldHide, nil
	}

	it.mu.Lock()
	it.hidden = shouldHide
	it.mu.Unlock()

	if shouldHide && !waited && it.opts.SettleDelay > 0 {
		select {
		case <-it.opts.Clock.After(it.opts.SettleDelay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		if err := it.guard.Verify(ticket); err != nil {
			return false, err
		}
		it.mu.Lock()
		it.renderedWaitedOnce = true
		it.mu.Unlock()
	}

	if err := it.guard.Verify(ticket); err != nil {
		return false, err
	}
	if err := it.anchor.SetHidden(shouldHide); err != nil {
		return false, err
	}
	return shouldHide, nil
}
