// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mosaic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/observability"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles/mercator"
)

// builderSearchLimit is generous on purpose: one country-sized region for
// one week is a few hundred scenes per collection.
const builderSearchLimit = 2000

// defaultMaxCloud keeps hopeless scenes out of optical mosaics while
// leaving the per-cell pick to do the real work.
const defaultMaxCloud = 80.0

// Builder generates mosaic manifests. Scheduling is someone else's job
// (the orchestration collaborator calls Build weekly or on demand);
// the builder only guarantees that a run is idempotent.
type Builder struct {
	provider providers.CatalogProvider
	store    Store
	logger   *slog.Logger
}

// NewBuilder wires a builder over the provider stack and a manifest store.
// Pass the cached/fallback stack for scheduled runs, or the raw chain for
// cache-bypassing reprocessing.
func NewBuilder(provider providers.CatalogProvider, store Store, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{provider: provider, store: store, logger: logger}
}

// Build searches the region for one collection and week bucket, picks a
// representative scene per index cell, and writes the manifest. Unlike
// tile serving there is no degraded path here: a failed search must fail
// the run loudly, so a missing manifest is an alertable event rather than
// a silently empty one.
func (b *Builder) Build(ctx context.Context, collection, weekBucket string, region datatypes.BoundingBox) (*Manifest, error) {
	start, end, err := WeekRange(weekBucket)
	if err != nil {
		return nil, err
	}
	if err := region.Validate(); err != nil {
		return nil, err
	}

	req := datatypes.SearchRequest{
		BBox:        region,
		Start:       start,
		End:         end,
		Collections: []string{collection},
		Limit:       builderSearchLimit,
	}
	if collection == "optical" {
		ceiling := defaultMaxCloud
		req.MaxCloudCover = &ceiling
	}

	result, err := b.provider.Search(ctx, req)
	if err != nil {
		if observability.Default != nil {
			observability.Default.MosaicBuildsTotal.WithLabelValues(collection, "error").Inc()
		}
		return nil, fmt.Errorf("mosaic: search %s %s: %w", collection, weekBucket, err)
	}
	if result.Cached {
		b.logger.Warn("building mosaic from cached scenes, providers are down",
			"collection", collection, "week", weekBucket)
	}

	manifest := &Manifest{
		FormatVersion: FormatVersion,
		Name:          ManifestName(collection, weekBucket),
		Collection:    collection,
		WeekBucket:    weekBucket,
		MinZoom:       DefaultMinZoom,
		MaxZoom:       DefaultMaxZoom,
		SpatialIndex:  buildSpatialIndex(result.Scenes),
		CreatedAt:     time.Now().UTC(),
	}

	if err := b.store.Put(ctx, manifest); err != nil {
		if observability.Default != nil {
			observability.Default.MosaicBuildsTotal.WithLabelValues(collection, "error").Inc()
		}
		return nil, fmt.Errorf("mosaic: store %s: %w", manifest.Name, err)
	}
	if observability.Default != nil {
		observability.Default.MosaicBuildsTotal.WithLabelValues(collection, "success").Inc()
	}
	b.logger.Info("mosaic manifest written",
		"name", manifest.Name, "cells", len(manifest.SpatialIndex), "scenes", len(result.Scenes))
	return manifest, nil
}

// buildSpatialIndex groups scenes by index cell and keeps the best one per
// cell: lowest cloud cover, or newest acquisition when cloud cover is
// absent (radar). Deterministic for a fixed scene set, which is what makes
// a rebuild safely replace its predecessor.
func buildSpatialIndex(scenes []datatypes.Scene) map[string]map[string]string {
	best := make(map[string]datatypes.Scene)
	for _, scene := range scenes {
		if len(scene.Assets) == 0 {
			continue
		}
		for _, cell := range mercator.CellsCovering(scene.BBox, IndexZoom) {
			qk := cell.Quadkey()
			current, ok := best[qk]
			if !ok || betterScene(scene, current) {
				best[qk] = scene
			}
		}
	}

	index := make(map[string]map[string]string, len(best))
	for qk, scene := range best {
		assets := make(map[string]string, len(scene.Assets))
		for band, locator := range scene.Assets {
			assets[band] = locator
		}
		index[qk] = assets
	}
	return index
}

func betterScene(candidate, current datatypes.Scene) bool {
	switch {
	case candidate.CloudCover != nil && current.CloudCover != nil:
		if *candidate.CloudCover != *current.CloudCover {
			return *candidate.CloudCover < *current.CloudCover
		}
		return candidate.AcquiredAt.After(current.AcquiredAt)
	case candidate.CloudCover != nil:
		return true // cloud-scored beats unscored
	case current.CloudCover != nil:
		return false
	default:
		return candidate.AcquiredAt.After(current.AcquiredAt)
	}
}
