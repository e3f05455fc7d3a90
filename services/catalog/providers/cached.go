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
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/scenecache"
)

// CachedProvider decorates a provider (normally the fallback chain) with
// write-through scene metadata caching. Only Search is cached: band
// downloads are too large, and signed locators differ in validity across
// providers. Asset and band operations pass straight through.
type CachedProvider struct {
	wrapped CatalogProvider
	store   *scenecache.Store
	logger  *slog.Logger
}

// NewCachedProvider wraps inner with the scene cache store.
func NewCachedProvider(wrapped CatalogProvider, store *scenecache.Store, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProvider{wrapped: wrapped, store: store, logger: logger}
}

func (c *CachedProvider) Name() string { return c.wrapped.Name() }

func (c *CachedProvider) Collections() []string { return c.wrapped.Collections() }

// Search attempts the wrapped chain. On success, results are persisted
// best-effort: a cache write failure is logged and never fails the search.
// On total chain failure the cache is the last resort; hits come back
// flagged Cached with the staleness timestamp, and only an empty cache
// re-raises the chain's failure.
func (c *CachedProvider) Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	result, err := c.wrapped.Search(ctx, req)
	if err == nil {
		c.persist(ctx, result, req)
		return result, nil
	}

	collection := ""
	if len(req.Collections) > 0 {
		collection = req.Collections[0]
	}
	scenes, cacheErr := c.store.Query(ctx, collection, req.Start, req.End, req.BBox, req.MaxCloudCover)
	if cacheErr != nil {
		c.logger.Error("cache fallback query failed", "error", cacheErr)
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, err
	}

	cachedAt := scenes[0].FetchedAt
	for _, s := range scenes[1:] {
		if s.FetchedAt.After(cachedAt) {
			cachedAt = s.FetchedAt
		}
	}
	c.logger.Warn("all providers failed, serving cached scenes",
		"scenes", len(scenes), "cached_at", cachedAt, "error", err)
	if observability.Default != nil {
		observability.Default.CacheFallbacksTotal.Inc()
	}
	return &datatypes.SearchResult{
		Scenes:   scenes,
		Provider: "cache",
		Cached:   true,
		CachedAt: &cachedAt,
	}, nil
}

// persist write-through-caches a successful search. The write is detached
// from the request's cancellation: metadata from an abandoned search is
// still worth keeping.
func (c *CachedProvider) persist(ctx context.Context, result *datatypes.SearchResult, req datatypes.SearchRequest) {
	collection := ""
	if len(req.Collections) > 0 {
		collection = req.Collections[0]
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.store.Upsert(writeCtx, result.Scenes, collection, result.Provider); err != nil {
		c.logger.Warn("cache write failed, continuing", "error", err)
		return
	}
	if observability.Default != nil {
		observability.Default.ScenesCachedTotal.Add(float64(len(result.Scenes)))
	}
}

func (c *CachedProvider) ResolveAsset(ctx context.Context, locator string) (string, error) {
	return c.wrapped.ResolveAsset(ctx, locator)
}

func (c *CachedProvider) FetchBand(ctx context.Context, locator string, clip datatypes.BoundingBox, width, height int) (*raster.Window, error) {
	return c.wrapped.FetchBand(ctx, locator, clip, width, height)
}

func (c *CachedProvider) HealthCheck(ctx context.Context) bool {
	return c.wrapped.HealthCheck(ctx)
}
