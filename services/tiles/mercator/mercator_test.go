// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mercator

import (
	"math"
	"testing"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
)

func TestQuadkeyRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		qk   string
	}{
		{"zoom zero", Cell{0, 0, 0}, ""},
		{"zoom one", Cell{1, 1, 0}, "1"},
		{"bing doc example", Cell{3, 3, 5}, "213"},
		{"zoom eight origin", Cell{8, 0, 0}, "00000000"},
		{"deep cell", Cell{8, 141, 93}, Cell{8, 141, 93}.Quadkey()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qk := tt.cell.Quadkey()
			if qk != tt.qk {
				t.Errorf("Quadkey() = %q, want %q", qk, tt.qk)
			}
			if len(qk) != tt.cell.Z {
				t.Errorf("quadkey length %d != zoom %d", len(qk), tt.cell.Z)
			}
			back, err := CellFromQuadkey(qk)
			if err != nil {
				t.Fatalf("CellFromQuadkey(%q) failed: %v", qk, err)
			}
			if back != tt.cell {
				t.Errorf("round trip = %+v, want %+v", back, tt.cell)
			}
		})
	}

	if _, err := CellFromQuadkey("01x2"); err == nil {
		t.Error("bad quadkey digit accepted")
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		cell Cell
		want bool
	}{
		{Cell{0, 0, 0}, true},
		{Cell{8, 255, 255}, true},
		{Cell{8, 256, 0}, false},
		{Cell{8, 0, -1}, false},
		{Cell{-1, 0, 0}, false},
		{Cell{MaxZoom + 1, 0, 0}, false},
	}
	for _, tt := range tests {
		if got := tt.cell.Valid(); got != tt.want {
			t.Errorf("Valid(%+v) = %v, want %v", tt.cell, got, tt.want)
		}
	}
}

func TestCellAt(t *testing.T) {
	// Greenwich at zoom 1 is the NE quadrant.
	if got := CellAt(0.1, 0.1, 1); got != (Cell{1, 1, 0}) {
		t.Errorf("CellAt(0.1, 0.1, 1) = %+v", got)
	}
	// Poles clamp instead of overflowing the row range.
	c := CellAt(0, 90, 4)
	if c.Y != 0 {
		t.Errorf("north pole row = %d, want 0", c.Y)
	}
	c = CellAt(0, -90, 4)
	if c.Y != 15 {
		t.Errorf("south pole row = %d, want 15", c.Y)
	}
}

func TestBoundsContainsCenter(t *testing.T) {
	// Campinas, Brazil.
	lon, lat := -47.06, -22.91
	for zoom := 1; zoom <= 14; zoom++ {
		cell := CellAt(lon, lat, zoom)
		b := cell.Bounds()
		if lon < b.West || lon > b.East || lat < b.South || lat > b.North {
			t.Fatalf("zoom %d: point outside its own cell bounds %+v", zoom, b)
		}
	}
}

func TestBoundsWorld(t *testing.T) {
	b := Cell{0, 0, 0}.Bounds()
	if b.West != -180 || b.East != 180 {
		t.Errorf("world bounds longitude = [%v, %v]", b.West, b.East)
	}
	if math.Abs(b.North-85.05112878) > 1e-6 {
		t.Errorf("world bounds north = %v", b.North)
	}
}

func TestCellsCovering(t *testing.T) {
	// One cell's own bounds covers exactly itself plus neighbors touched on
	// the shared edge; shrink slightly to get exactly one.
	cell := Cell{8, 141, 93}
	b := cell.Bounds()
	shrunk := datatypes.BoundingBox{
		West:  b.West + 1e-6,
		South: b.South + 1e-6,
		East:  b.East - 1e-6,
		North: b.North - 1e-6,
	}
	cells := CellsCovering(shrunk, 8)
	if len(cells) != 1 || cells[0] != cell {
		t.Errorf("CellsCovering own bounds = %v, want [%+v]", cells, cell)
	}

	// A bbox spanning two cells horizontally.
	wide := datatypes.BoundingBox{West: b.West + 1e-6, South: b.South + 1e-6, East: b.East + 0.1, North: b.North - 1e-6}
	cells = CellsCovering(wide, 8)
	if len(cells) != 2 {
		t.Errorf("CellsCovering wide bbox = %d cells, want 2", len(cells))
	}
}

func TestAncestorAt(t *testing.T) {
	c := Cell{14, 9017, 5983}
	a := c.AncestorAt(8)
	if a.Z != 8 {
		t.Fatalf("ancestor zoom = %d", a.Z)
	}
	// The ancestor's quadkey is a prefix of the descendant's.
	if got, want := a.Quadkey(), c.Quadkey()[:8]; got != want {
		t.Errorf("ancestor quadkey = %q, want %q", got, want)
	}
	// Same zoom or deeper is a no-op.
	if c.AncestorAt(14) != c || c.AncestorAt(20) != c {
		t.Error("AncestorAt at or below own zoom should return the cell")
	}
}
