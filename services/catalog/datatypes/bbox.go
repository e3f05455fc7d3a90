// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the catalog
// acquisition stack: scenes, bounding boxes, and search requests.
//
// Every provider adapter normalizes upstream responses into these types,
// so downstream components (scene cache, mosaic builder, tile compute)
// never carry provider-specific branching.
package datatypes

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned for degenerate or out-of-range envelopes.
// It is a caller error: never retried, never recorded on a circuit breaker.
var ErrInvalidGeometry = errors.New("invalid geometry")

// BoundingBox is a WGS84 envelope in degrees: [west, south, east, north].
type BoundingBox struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Validate checks that the envelope is well formed and inside WGS84 bounds.
func (b BoundingBox) Validate() error {
	if b.West >= b.East || b.South >= b.North {
		return fmt.Errorf("%w: empty envelope [%g %g %g %g]",
			ErrInvalidGeometry, b.West, b.South, b.East, b.North)
	}
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return fmt.Errorf("%w: envelope outside WGS84 bounds [%g %g %g %g]",
			ErrInvalidGeometry, b.West, b.South, b.East, b.North)
	}
	return nil
}

// Intersects reports whether the two envelopes overlap. Envelopes that only
// touch at an edge are treated as intersecting.
func (b BoundingBox) Intersects(other BoundingBox) bool {
	return b.West <= other.East && b.East >= other.West &&
		b.South <= other.North && b.North >= other.South
}

// Union returns the smallest envelope containing both inputs.
func (b BoundingBox) Union(other BoundingBox) BoundingBox {
	out := b
	if other.West < out.West {
		out.West = other.West
	}
	if other.South < out.South {
		out.South = other.South
	}
	if other.East > out.East {
		out.East = other.East
	}
	if other.North > out.North {
		out.North = other.North
	}
	return out
}

// Slice returns the envelope in GeoJSON bbox order [west, south, east, north].
func (b BoundingBox) Slice() []float64 {
	return []float64{b.West, b.South, b.East, b.North}
}

// BBoxFromSlice builds a BoundingBox from a GeoJSON-ordered 4-element slice.
func BBoxFromSlice(v []float64) (BoundingBox, error) {
	if len(v) != 4 {
		return BoundingBox{}, fmt.Errorf("%w: bbox needs 4 numbers, got %d", ErrInvalidGeometry, len(v))
	}
	return BoundingBox{West: v[0], South: v[1], East: v[2], North: v[3]}, nil
}
