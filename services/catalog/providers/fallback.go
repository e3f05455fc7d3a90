// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/observability"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/raster"
)

// ProviderSource supplies the current priority-ordered provider list. The
// registry implements it so config reloads swap providers without touching
// the chain; tests pass a StaticProviders literal.
type ProviderSource interface {
	Providers() []CatalogProvider
}

// StaticProviders is a fixed ProviderSource.
type StaticProviders []CatalogProvider

func (s StaticProviders) Providers() []CatalogProvider { return s }

// FallbackChain implements CatalogProvider over an ordered provider list.
// Providers are tried strictly in list order, one at a time: parallel
// trials would double-bill requests against metered catalogs. A provider
// is skipped when its collections don't intersect the request or when its
// circuit is open (half-open is allowed through as the trial call).
type FallbackChain struct {
	source   ProviderSource
	breakers *BreakerSet
	logger   *slog.Logger
}

// NewFallbackChain builds a chain over source with per-provider breakers.
func NewFallbackChain(source ProviderSource, breakers *BreakerSet, logger *slog.Logger) *FallbackChain {
	if breakers == nil {
		breakers = NewBreakerSet(DefaultBreakerConfig())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackChain{source: source, breakers: breakers, logger: logger}
}

// Breakers exposes the breaker set for metrics export.
func (c *FallbackChain) Breakers() *BreakerSet { return c.breakers }

func (c *FallbackChain) Name() string { return "fallback-chain" }

// Collections returns the union over the current provider list.
func (c *FallbackChain) Collections() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.source.Providers() {
		for _, col := range p.Collections() {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// Search tries each eligible provider in priority order and returns the
// first success. Failures are recorded on that provider's breaker and the
// walk continues; a full walk with no winner returns AllProvidersFailed
// carrying the last cause.
func (c *FallbackChain) Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	attempts := 0
	for _, p := range c.source.Providers() {
		if !collectionsIntersect(p.Collections(), req.Collections) {
			continue
		}
		cb := c.breakers.For(p.Name())
		if !cb.Allow() {
			c.logger.Debug("skipping provider, circuit open", "provider", p.Name())
			lastErr = &ErrCircuitOpen{Provider: p.Name()}
			continue
		}

		attempts++
		started := time.Now()
		result, err := p.Search(ctx, req)
		if observability.Default != nil {
			observability.Default.SearchDurationSeconds.WithLabelValues(p.Name()).Observe(time.Since(started).Seconds())
		}
		if err != nil {
			cb.RecordFailure()
			lastErr = err
			if observability.Default != nil {
				observability.Default.SearchesTotal.WithLabelValues(p.Name(), "error").Inc()
			}
			c.logger.Warn("provider search failed, trying next",
				"provider", p.Name(), "error", err)
			continue
		}

		cb.RecordSuccess()
		if observability.Default != nil {
			observability.Default.SearchesTotal.WithLabelValues(p.Name(), "success").Inc()
		}
		for i := range result.Scenes {
			result.Scenes[i].Provider = p.Name()
		}
		result.Provider = p.Name()
		return result, nil
	}

	return nil, &AllProvidersFailed{Op: "search", Attempts: attempts, LastErr: lastErr}
}

// ResolveAsset runs the same per-provider trial loop: a locator issued by
// one provider is not guaranteed resolvable by another, so each eligible
// provider gets a try.
func (c *FallbackChain) ResolveAsset(ctx context.Context, locator string) (string, error) {
	var lastErr error
	attempts := 0
	for _, p := range c.source.Providers() {
		cb := c.breakers.For(p.Name())
		if !cb.Allow() {
			lastErr = &ErrCircuitOpen{Provider: p.Name()}
			continue
		}
		attempts++
		resolved, err := p.ResolveAsset(ctx, locator)
		if err != nil {
			cb.RecordFailure()
			lastErr = err
			continue
		}
		cb.RecordSuccess()
		return resolved, nil
	}
	return "", &AllProvidersFailed{Op: "resolve-asset", Attempts: attempts, LastErr: lastErr}
}

// FetchBand applies the per-provider trial loop to band downloads.
func (c *FallbackChain) FetchBand(ctx context.Context, locator string, clip datatypes.BoundingBox, width, height int) (*raster.Window, error) {
	var lastErr error
	attempts := 0
	for _, p := range c.source.Providers() {
		cb := c.breakers.For(p.Name())
		if !cb.Allow() {
			lastErr = &ErrCircuitOpen{Provider: p.Name()}
			continue
		}
		attempts++
		win, err := p.FetchBand(ctx, locator, clip, width, height)
		if err != nil {
			cb.RecordFailure()
			lastErr = err
			if observability.Default != nil {
				observability.Default.BandFetchesTotal.WithLabelValues(p.Name(), "error").Inc()
			}
			continue
		}
		cb.RecordSuccess()
		if observability.Default != nil {
			observability.Default.BandFetchesTotal.WithLabelValues(p.Name(), "success").Inc()
		}
		return win, nil
	}
	return nil, &AllProvidersFailed{Op: "fetch-band", Attempts: attempts, LastErr: lastErr}
}

// HealthCheck reports true when any provider in the chain is healthy.
func (c *FallbackChain) HealthCheck(ctx context.Context) bool {
	for _, p := range c.source.Providers() {
		if p.HealthCheck(ctx) {
			return true
		}
	}
	return false
}
