// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"
)

// Canonical band names. Provider adapters map upstream asset keys onto this
// vocabulary; assets that don't map are dropped at ingest so band-algebra
// expressions work identically against every provider.
const (
	BandRed    = "red"
	BandGreen  = "green"
	BandBlue   = "blue"
	BandNIR    = "nir"
	BandSWIR16 = "swir16"
	BandSWIR22 = "swir22"
	BandSCL    = "scl"
	BandVH     = "vh"
	BandVV     = "vv"
	BandDEM    = "dem"
)

// CanonicalBands is the full asset vocabulary, used to validate provider
// asset-key mappings at registry load time.
var CanonicalBands = map[string]bool{
	BandRed:    true,
	BandGreen:  true,
	BandBlue:   true,
	BandNIR:    true,
	BandSWIR16: true,
	BandSWIR22: true,
	BandSCL:    true,
	BandVH:     true,
	BandVV:     true,
	BandDEM:    true,
}

// Scene is one catalog search result: metadata plus remote band locators.
// Identity is the composite (ID, Provider); the same physical acquisition may
// be known to multiple providers under different ids.
type Scene struct {
	ID         string    `json:"id"`
	Provider   string    `json:"provider"`
	Collection string    `json:"collection"`
	AcquiredAt time.Time `json:"acquired_at"`

	// CloudCover is a percentage in [0, 100]. Nil for radar collections.
	CloudCover *float64 `json:"cloud_cover,omitempty"`

	Platform string      `json:"platform,omitempty"`
	BBox     BoundingBox `json:"bbox"`

	// Footprint is the raw GeoJSON geometry of the acquisition, when the
	// provider supplies one. Kept opaque; only the bbox is used internally.
	Footprint json.RawMessage `json:"footprint,omitempty"`

	// Assets maps canonical band names to provider-specific remote locators.
	// Locators may be unsigned; callers go through ResolveAsset before fetching.
	Assets map[string]string `json:"assets"`

	FetchedAt time.Time `json:"fetched_at"`

	// ExpiresAt is set when the provider's signed locators carry a validity
	// window. Nil for providers with durable public locators.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Key returns the composite cache identity for the scene.
func (s Scene) Key() string {
	return s.Provider + "/" + s.ID
}

// SearchRequest is the uniform spatio-temporal query passed to every
// catalog provider.
type SearchRequest struct {
	BBox  BoundingBox
	Start time.Time
	End   time.Time

	// MaxCloudCover caps eo:cloud_cover in percent. Nil means no ceiling
	// (required for radar collections, which report no cloud cover).
	MaxCloudCover *float64

	Collections []string

	// Limit caps returned scenes. Zero means the provider default (100).
	Limit int
}

// Validate rejects malformed requests before any network call is made.
func (r SearchRequest) Validate() error {
	if err := r.BBox.Validate(); err != nil {
		return err
	}
	if !r.End.After(r.Start) {
		return fmt.Errorf("%w: time range end %s is not after start %s",
			ErrInvalidGeometry, r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// SearchResult carries scenes plus degradation flags. Cached is set only by
// the cache-fallback path; callers surface it so stale reads are observable.
type SearchResult struct {
	Scenes   []Scene    `json:"scenes"`
	Provider string     `json:"provider"`
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cached_at,omitempty"`
}
