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
	"errors"
	"testing"
	"time"
)

func TestBoundingBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		bbox    BoundingBox
		wantErr bool
	}{
		{"valid", BoundingBox{West: -48, South: -23, East: -47, North: -22}, false},
		{"world", BoundingBox{West: -180, South: -90, East: 180, North: 90}, false},
		{"inverted lon", BoundingBox{West: -47, South: -23, East: -48, North: -22}, true},
		{"inverted lat", BoundingBox{West: -48, South: -22, East: -47, North: -23}, true},
		{"degenerate point", BoundingBox{West: 1, South: 1, East: 1, North: 1}, true},
		{"west out of range", BoundingBox{West: -181, South: 0, East: 0, North: 1}, true},
		{"north out of range", BoundingBox{West: 0, South: 0, East: 1, North: 91}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bbox.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("error %v should wrap ErrInvalidGeometry", err)
			}
		})
	}
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := BoundingBox{West: 0, South: 0, East: 10, North: 10}

	tests := []struct {
		name  string
		other BoundingBox
		want  bool
	}{
		{"overlap", BoundingBox{West: 5, South: 5, East: 15, North: 15}, true},
		{"contained", BoundingBox{West: 2, South: 2, East: 8, North: 8}, true},
		{"edge touch", BoundingBox{West: 10, South: 0, East: 20, North: 10}, true},
		{"disjoint east", BoundingBox{West: 11, South: 0, East: 20, North: 10}, false},
		{"disjoint north", BoundingBox{West: 0, South: 11, East: 10, North: 20}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Intersects(tt.other); got != tt.want {
				t.Errorf("Intersects = %v, want %v", got, tt.want)
			}
			// Symmetric.
			if got := tt.other.Intersects(a); got != tt.want {
				t.Errorf("reverse Intersects = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBBoxSliceRoundTrip(t *testing.T) {
	b := BoundingBox{West: -48, South: -23, East: -47, North: -22}
	got, err := BBoxFromSlice(b.Slice())
	if err != nil {
		t.Fatal(err)
	}
	if got != b {
		t.Errorf("round trip = %+v, want %+v", got, b)
	}

	if _, err := BBoxFromSlice([]float64{1, 2, 3}); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("short slice error = %v", err)
	}
}

func TestSearchRequestValidate(t *testing.T) {
	valid := SearchRequest{
		BBox:  BoundingBox{West: -48, South: -23, East: -47, North: -22},
		Start: time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}

	reversed := valid
	reversed.Start, reversed.End = reversed.End, reversed.Start
	if err := reversed.Validate(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("reversed time range error = %v", err)
	}

	badBox := valid
	badBox.BBox.North = -24
	if err := badBox.Validate(); !errors.Is(err, ErrInvalidGeometry) {
		t.Errorf("bad bbox error = %v", err)
	}
}

func TestSceneKey(t *testing.T) {
	s := Scene{ID: "S2A_123", Provider: "earth-search"}
	if got := s.Key(); got != "earth-search/S2A_123" {
		t.Errorf("Key() = %q", got)
	}
}
