// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import "sync"

// ResultCache memoizes classification results by content fingerprint.
//
// Eviction is strict FIFO over insertion order: once the fixed capacity
// is reached, inserting a new fingerprint evicts the single
// oldest-inserted one. Reads deliberately do not refresh recency; a
// fingerprint that is read on every refresh still ages out on schedule.
//
// # Thread Safety
//
// ResultCache is safe for concurrent use. The settings object and the
// cache are the engine's only shared mutable structures; both serialize
// access internally.
type ResultCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint32]*Result
	order    *evictionQueue

	hits      uint64
	misses    uint64
	evictions uint64
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// NewResultCache creates a cache holding at most capacity results.
// Capacity is fixed for the cache's lifetime. A capacity below one is
// raised to one.
func NewResultCache(capacity int) *ResultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &ResultCache{
		capacity: capacity,
		entries:  make(map[uint32]*Result, capacity),
		order:    newEvictionQueue(capacity),
	}
}

// Get returns the cached result for fp, or nil on a miss.
func (c *ResultCache) Get(fp uint32) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[fp]
	if !ok {
		c.misses++
		return nil
	}
	c.hits++
	return result
}

// Put stores a result under fp, evicting the oldest-inserted entry
// first when the cache is full. Re-putting an existing fingerprint
// replaces the value in place without touching its eviction position.
func (c *ResultCache) Put(fp uint32, result *Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fp]; ok {
		c.entries[fp] = result
		return
	}

	if len(c.entries) >= c.capacity {
		if oldest, ok := c.order.pop(); ok {
			delete(c.entries, oldest)
			c.evictions++
		}
	}

	// Eviction above guarantees a free slot; a full queue here is a bug.
	if err := c.order.push(fp); err != nil {
		panic("classify: eviction queue overflow: " + err.Error())
	}
	c.entries[fp] = result
}

// Clear empties the cache and its eviction queue. Counters survive.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint32]*Result, c.capacity)
	c.order.clear()
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Size:      len(c.entries),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
