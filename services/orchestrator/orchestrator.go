// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator owns the engine's shared state: the single
// settings instance, the enable flag, the classification cache and
// oracle, and the set of live thread controllers. It is the
// thread.Runtime every controller reads through, and the place where
// settings changes fan out.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/threadlens/services/classify"
	"github.com/AleutianAI/threadlens/services/filter"
	"github.com/AleutianAI/threadlens/services/store"
	"github.com/AleutianAI/threadlens/services/thread"
)

// DefaultCacheCapacity bounds the shared classification cache.
const DefaultCacheCapacity = 512

// Options configures an Orchestrator. Oracle is required; everything
// else has a default.
type Options struct {
	// Oracle classifies text on cache misses.
	Oracle classify.Oracle

	// Store persists the settings record. May be nil; settings then
	// live only in memory.
	Store store.Store

	// CacheCapacity defaults to DefaultCacheCapacity.
	CacheCapacity int

	// Thread is passed through to every thread controller.
	Thread thread.Options

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Orchestrator implements thread.Runtime and manages the engine's
// lifecycle: loading and persisting settings, reacting to settings
// changes, and tracking thread controllers.
type Orchestrator struct {
	oracle  classify.Oracle
	cache   *classify.ResultCache
	st      store.Store
	topts   thread.Options
	log     *slog.Logger
	metrics *engineMetrics

	enabled atomic.Bool

	mu       sync.RWMutex
	settings *filter.Settings
	threads  map[string]*thread.Controller
}

// New creates an orchestrator with default settings. Call LoadSettings
// to hydrate from the store.
func New(opts Options) (*Orchestrator, error) {
	if opts.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = DefaultCacheCapacity
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	o := &Orchestrator{
		cache:    classify.NewResultCache(opts.CacheCapacity),
		st:       opts.Store,
		topts:    opts.Thread,
		log:      opts.Logger,
		metrics:  newEngineMetrics(),
		settings: filter.NewSettings(),
		threads:  make(map[string]*thread.Controller),
	}
	o.oracle = &countingOracle{next: opts.Oracle, metrics: o.metrics}
	o.enabled.Store(o.settings.EnabledByDefault())
	return o, nil
}

// Settings implements thread.Runtime.
func (o *Orchestrator) Settings() *filter.Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// Enabled implements thread.Runtime.
func (o *Orchestrator) Enabled() bool {
	return o.enabled.Load()
}

// Cache implements thread.Runtime.
func (o *Orchestrator) Cache() *classify.ResultCache {
	return o.cache
}

// Oracle implements thread.Runtime.
func (o *Orchestrator) Oracle() classify.Oracle {
	return o.oracle
}

// LoadSettings hydrates settings from the store. A missing record or a
// storage failure falls back to defaults so the engine always starts;
// the failure is logged, not returned.
func (o *Orchestrator) LoadSettings(ctx context.Context) {
	if o.st == nil {
		return
	}
	rec, err := o.st.Load(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.log.Warn("settings load failed, using defaults", "error", err)
		}
		return
	}
	settings, err := filter.FromRecord(*rec)
	if err != nil {
		o.log.Warn("stored settings invalid, using defaults", "error", err)
		return
	}
	o.mu.Lock()
	o.settings = settings
	o.mu.Unlock()
	o.enabled.Store(settings.EnabledByDefault())
}

// ApplyRecord installs a new settings record, persists it, and fans a
// filter refresh out to every thread when the change affects filtering
// decisions. It returns the number of threads whose visible state
// changed.
func (o *Orchestrator) ApplyRecord(ctx context.Context, rec filter.Record) (int, error) {
	settings, err := filter.FromRecord(rec)
	if err != nil {
		return 0, fmt.Errorf("apply settings record: %w", err)
	}

	o.mu.Lock()
	needsRefresh := settings.ShouldRefreshFilter(o.settings.Clone())
	o.settings = settings
	o.mu.Unlock()

	enabledBefore := o.enabled.Swap(settings.EnabledByDefault())
	if enabledBefore != settings.EnabledByDefault() {
		needsRefresh = true
	}

	if o.st != nil {
		if err := o.st.Save(ctx, &rec); err != nil {
			o.log.Warn("settings save failed", "error", err)
		}
	}

	if !needsRefresh {
		return 0, nil
	}
	return o.refreshAllThreads(ctx), nil
}

// SetEnabled toggles the whole engine and re-decides every thread.
// It returns the number of threads whose visible state changed.
func (o *Orchestrator) SetEnabled(ctx context.Context, enabled bool) int {
	if o.enabled.Swap(enabled) == enabled {
		return 0
	}
	return o.refreshAllThreads(ctx)
}

func (o *Orchestrator) refreshAllThreads(ctx context.Context) int {
	o.mu.RLock()
	threads := make([]*thread.Controller, 0, len(o.threads))
	for _, tc := range o.threads {
		threads = append(threads, tc)
	}
	o.mu.RUnlock()

	var changed atomic.Int64
	var g errgroup.Group
	for _, tc := range threads {
		g.Go(func() error {
			if tc.RefreshFilter(ctx) {
				changed.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	o.metrics.filterRefreshes.Inc()
	o.updateGauges()
	return int(changed.Load())
}

// WatchStore re-applies stored settings whenever another writer
// changes them. It blocks until ctx is cancelled; run it on its own
// goroutine.
func (o *Orchestrator) WatchStore(ctx context.Context) error {
	if o.st == nil {
		return nil
	}
	ch, err := o.st.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch settings store: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			rec, err := o.st.Load(ctx)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					o.log.Warn("settings reload failed", "error", err)
				}
				continue
			}
			settings, err := filter.FromRecord(*rec)
			if err != nil {
				o.log.Warn("stored settings invalid, keeping current", "error", err)
				continue
			}

			o.mu.Lock()
			needsRefresh := settings.ShouldRefreshFilter(o.settings.Clone())
			o.settings = settings
			o.mu.Unlock()
			enabledBefore := o.enabled.Swap(settings.EnabledByDefault())
			if needsRefresh || enabledBefore != settings.EnabledByDefault() {
				o.refreshAllThreads(ctx)
			}
		}
	}
}

// AddThread creates and refreshes a controller for the thread rooted
// at mainAnchor. The returned controller is already registered.
func (o *Orchestrator) AddThread(ctx context.Context, mainAnchor thread.Anchor, f thread.Feed) *thread.Controller {
	tc := thread.NewController(mainAnchor, f, o, o.topts)
	o.mu.Lock()
	o.threads[tc.ID()] = tc
	o.mu.Unlock()

	tc.RefreshMain(ctx)
	o.metrics.threadsAdded.Inc()
	o.updateGauges()
	return tc
}

// RemoveThreadByAnchor destroys the controller whose main item sits on
// the anchor with the given ID. Unknown IDs are ignored.
func (o *Orchestrator) RemoveThreadByAnchor(anchorID string) {
	o.mu.Lock()
	var victim *thread.Controller
	for id, tc := range o.threads {
		if tc.Main().Anchor().ID() == anchorID {
			victim = tc
			delete(o.threads, id)
			break
		}
	}
	o.mu.Unlock()
	if victim != nil {
		victim.Destroy()
		o.metrics.threadsRemoved.Inc()
		o.updateGauges()
	}
}

// ThreadCount reports the number of live thread controllers.
func (o *Orchestrator) ThreadCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.threads)
}

// Stats is a point-in-time snapshot for the stats endpoint.
type Stats struct {
	Enabled     bool                `json:"enabled"`
	Threads     int                 `json:"threads"`
	Items       int                 `json:"items"`
	HiddenItems int                 `json:"hiddenItems"`
	Cache       classify.CacheStats `json:"cache"`
}

// Snapshot gathers current engine statistics.
func (o *Orchestrator) Snapshot() Stats {
	o.mu.RLock()
	threads := make([]*thread.Controller, 0, len(o.threads))
	for _, tc := range o.threads {
		threads = append(threads, tc)
	}
	o.mu.RUnlock()

	s := Stats{
		Enabled: o.Enabled(),
		Threads: len(threads),
		Cache:   o.cache.Stats(),
	}
	for _, tc := range threads {
		s.Items += tc.ItemCount()
		s.HiddenItems += tc.HiddenCount()
	}
	return s
}

// Close destroys every thread controller and closes the store.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	threads := o.threads
	o.threads = make(map[string]*thread.Controller)
	o.mu.Unlock()
	for _, tc := range threads {
		tc.Destroy()
	}
	if o.st != nil {
		return o.st.Close()
	}
	return nil
}

func (o *Orchestrator) updateGauges() {
	s := o.Snapshot()
	o.metrics.threadsLive.Set(float64(s.Threads))
	o.metrics.itemsHidden.Set(float64(s.HiddenItems))
	o.metrics.cacheHits.Set(float64(s.Cache.Hits))
	o.metrics.cacheMisses.Set(float64(s.Cache.Misses))
	o.metrics.cacheEvictions.Set(float64(s.Cache.Evictions))
}

// countingOracle wraps the real oracle with call metrics.
type countingOracle struct {
	next    classify.Oracle
	metrics *engineMetrics
}

func (c *countingOracle) Classify(ctx context.Context, text string) (*classify.Result, error) {
	result, err := c.next.Classify(ctx, text)
	if err != nil {
		c.metrics.oracleFailures.Inc()
		return nil, err
	}
	c.metrics.oracleCalls.Inc()
	return result, nil
}
