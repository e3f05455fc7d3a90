// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the acquisition
// and tile-serving stack.
//
// Metrics are exposed on /metrics. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "vivacampo"

// Metrics holds all Prometheus collectors for the service. Initialize once
// at startup via InitMetrics().
type Metrics struct {
	// SearchesTotal counts catalog searches.
	// Labels: provider, status (success, error, cached)
	SearchesTotal *prometheus.CounterVec

	// SearchDurationSeconds measures end-to-end search latency per provider.
	SearchDurationSeconds *prometheus.HistogramVec

	// BreakerState exports circuit breaker state per provider
	// (0=closed, 1=open, 2=half_open).
	BreakerState *prometheus.GaugeVec

	// CacheFallbacksTotal counts searches served from the scene cache after
	// a full chain failure.
	CacheFallbacksTotal prometheus.Counter

	// ScenesCachedTotal counts scenes written through to the cache.
	ScenesCachedTotal prometheus.Counter

	// BandFetchesTotal counts band window downloads.
	// Labels: provider, status
	BandFetchesTotal *prometheus.CounterVec

	// TilesRenderedTotal counts tile renders.
	// Labels: status (success, nodata, error)
	TilesRenderedTotal *prometheus.CounterVec

	// TileRenderSeconds measures full tile render latency.
	TileRenderSeconds prometheus.Histogram

	// MosaicBuildsTotal counts mosaic builder runs.
	// Labels: collection, status
	MosaicBuildsTotal *prometheus.CounterVec
}

// Default is the singleton instance, set by InitMetrics().
var Default *Metrics

// InitMetrics creates and registers all collectors. Call once at startup;
// a second call would panic on duplicate registration, which is the
// behavior we want for a wiring bug.
func InitMetrics() *Metrics {
	m := &Metrics{
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog",
			Name:      "searches_total",
			Help:      "Catalog searches by provider and status.",
		}, []string{"provider", "status"}),

		SearchDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog",
			Name:      "search_duration_seconds",
			Help:      "Catalog search latency.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
		}, []string{"provider"}),

		CacheFallbacksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog",
			Name:      "cache_fallbacks_total",
			Help:      "Searches served from the scene cache after total chain failure.",
		}),

		ScenesCachedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "catalog",
			Name:      "scenes_cached_total",
			Help:      "Scenes written through to the cache.",
		}),

		BandFetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tiles",
			Name:      "band_fetches_total",
			Help:      "Band window downloads by provider and status.",
		}, []string{"provider", "status"}),

		TilesRenderedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "tiles",
			Name:      "rendered_total",
			Help:      "Tile renders by outcome.",
		}, []string{"status"}),

		TileRenderSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "tiles",
			Name:      "render_seconds",
			Help:      "Full tile render latency.",
			Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
		}),

		MosaicBuildsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "mosaic",
			Name:      "builds_total",
			Help:      "Mosaic builder runs by collection and status.",
		}, []string{"collection", "status"}),
	}
	Default = m
	return m
}
