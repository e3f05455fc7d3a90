// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package providers implements the catalog acquisition stack: the uniform
// provider contract, concrete STAC-backed providers, the per-provider
// circuit breaker, the priority-ordered fallback chain, and the
// write-through cache decorator.
//
// Composition at process start (see services/catalog/registry):
//
//	CachedProvider
//	    └── FallbackChain
//	            ├── BreakerSet (per provider name)
//	            ├── StacProvider "earth-search"
//	            └── SignedProvider "planetary"
//
// Every layer implements CatalogProvider, so components above this package
// (mosaic builder, tile compute) only see the one interface.
package providers

import (
	"context"
	"net/http"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/raster"
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CatalogProvider is the uniform contract every upstream catalog adapter
// implements. All operations honor ctx cancellation and carry their own
// bounded timeouts.
type CatalogProvider interface {
	// Name identifies the provider; it keys circuit breakers and metrics.
	Name() string

	// Collections lists the logical collections this provider can serve.
	Collections() []string

	// Search returns scenes matching the request. Transient upstream errors
	// (429, 5xx, timeouts) are retried with bounded exponential backoff
	// before failure is surfaced; 4xx other than auth expiry is never
	// retried. Returned scenes are tagged with Name().
	Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error)

	// ResolveAsset turns a possibly-unsigned locator into a fetchable one.
	// Idempotent: providers that need no signing return the input unchanged.
	ResolveAsset(ctx context.Context, locator string) (string, error)

	// FetchBand downloads the band window clipped to clip, resampled to
	// width x height samples. The locator must already be resolved.
	FetchBand(ctx context.Context, locator string, clip datatypes.BoundingBox, width, height int) (*raster.Window, error)

	// HealthCheck probes the provider within a short bounded timeout.
	// It never returns an error; an unreachable provider is simply false.
	HealthCheck(ctx context.Context) bool
}

// collectionsIntersect reports whether a provider serving `have` can answer
// a request for `want`. An empty `want` means any collection is acceptable.
func collectionsIntersect(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
