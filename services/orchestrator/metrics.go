// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics collects the engine's operational counters. Each
// orchestrator owns its collectors and registers them on demand, so
// tests can build orchestrators freely without duplicate-registration
// panics on the default registry.
type engineMetrics struct {
	threadsAdded    prometheus.Counter
	threadsRemoved  prometheus.Counter
	filterRefreshes prometheus.Counter
	oracleCalls     prometheus.Counter
	oracleFailures  prometheus.Counter

	threadsLive    prometheus.Gauge
	itemsHidden    prometheus.Gauge
	cacheHits      prometheus.Gauge
	cacheMisses    prometheus.Gauge
	cacheEvictions prometheus.Gauge
}

func newEngineMetrics() *engineMetrics {
	return &engineMetrics{
		threadsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadlens_threads_added_total",
			Help: "Thread controllers created over the process lifetime.",
		}),
		threadsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadlens_threads_removed_total",
			Help: "Thread controllers destroyed over the process lifetime.",
		}),
		filterRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadlens_filter_refreshes_total",
			Help: "Engine-wide filter refresh fan-outs.",
		}),
		oracleCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadlens_oracle_calls_total",
			Help: "Successful classification oracle calls.",
		}),
		oracleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadlens_oracle_failures_total",
			Help: "Failed classification oracle calls.",
		}),
		threadsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadlens_threads_live",
			Help: "Currently tracked thread controllers.",
		}),
		itemsHidden: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadlens_items_hidden",
			Help: "Items currently hidden across all threads.",
		}),
		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadlens_cache_hits",
			Help: "Classification cache hits.",
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadlens_cache_misses",
			Help: "Classification cache misses.",
		}),
		cacheEvictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadlens_cache_evictions",
			Help: "Classification cache evictions.",
		}),
	}
}

// register adds every collector to reg.
func (m *engineMetrics) register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.threadsAdded, m.threadsRemoved, m.filterRefreshes,
		m.oracleCalls, m.oracleFailures,
		m.threadsLive, m.itemsHidden,
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
