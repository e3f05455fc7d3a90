// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mercator implements Web Mercator (EPSG:3857) tile arithmetic:
// tile envelopes in WGS84 degrees, quadkeys, and cell coverage for
// arbitrary bounding boxes.
package mercator

import (
	"fmt"
	"math"
	"strings"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
)

// MaxZoom is the deepest tile level the service will address.
const MaxZoom = 22

// Cell identifies one Web Mercator tile.
type Cell struct {
	Z int
	X int
	Y int
}

// Valid reports whether the cell coordinates exist at its zoom level.
func (c Cell) Valid() bool {
	if c.Z < 0 || c.Z > MaxZoom {
		return false
	}
	n := 1 << uint(c.Z)
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// Quadkey returns the Bing-style quadkey for the cell; the empty string
// for zoom 0.
func (c Cell) Quadkey() string {
	var sb strings.Builder
	for z := c.Z; z > 0; z-- {
		digit := byte('0')
		mask := 1 << uint(z-1)
		if c.X&mask != 0 {
			digit++
		}
		if c.Y&mask != 0 {
			digit += 2
		}
		sb.WriteByte(digit)
	}
	return sb.String()
}

// CellFromQuadkey parses a quadkey back into a cell.
func CellFromQuadkey(qk string) (Cell, error) {
	c := Cell{Z: len(qk)}
	for i := 0; i < len(qk); i++ {
		mask := 1 << uint(len(qk)-i-1)
		switch qk[i] {
		case '0':
		case '1':
			c.X |= mask
		case '2':
			c.Y |= mask
		case '3':
			c.X |= mask
			c.Y |= mask
		default:
			return Cell{}, fmt.Errorf("mercator: bad quadkey digit %q in %q", qk[i], qk)
		}
	}
	return c, nil
}

// Bounds returns the cell's envelope in WGS84 degrees.
func (c Cell) Bounds() datatypes.BoundingBox {
	n := float64(int(1) << uint(c.Z))
	west := float64(c.X)/n*360 - 180
	east := float64(c.X+1)/n*360 - 180
	north := tileLat(float64(c.Y), n)
	south := tileLat(float64(c.Y+1), n)
	return datatypes.BoundingBox{West: west, South: south, East: east, North: north}
}

// tileLat converts a fractional tile row to latitude degrees.
func tileLat(y, n float64) float64 {
	rad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/n)))
	return rad * 180 / math.Pi
}

// CellAt returns the tile containing (lon, lat) at the given zoom.
// Latitude is clamped to the Web Mercator valid range.
func CellAt(lon, lat float64, zoom int) Cell {
	n := float64(int(1) << uint(zoom))
	lat = math.Max(-85.05112878, math.Min(85.05112878, lat))
	x := int((lon + 180) / 360 * n)
	latRad := lat * math.Pi / 180
	y := int((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)
	clamp := int(n) - 1
	if x < 0 {
		x = 0
	} else if x > clamp {
		x = clamp
	}
	if y < 0 {
		y = 0
	} else if y > clamp {
		y = clamp
	}
	return Cell{Z: zoom, X: x, Y: y}
}

// CellsCovering enumerates every tile at the given zoom whose envelope
// intersects bbox.
func CellsCovering(bbox datatypes.BoundingBox, zoom int) []Cell {
	nw := CellAt(bbox.West, bbox.North, zoom)
	se := CellAt(bbox.East, bbox.South, zoom)

	cells := make([]Cell, 0, (se.X-nw.X+1)*(se.Y-nw.Y+1))
	for x := nw.X; x <= se.X; x++ {
		for y := nw.Y; y <= se.Y; y++ {
			cells = append(cells, Cell{Z: zoom, X: x, Y: y})
		}
	}
	return cells
}

// AncestorAt returns the containing tile at a shallower zoom.
func (c Cell) AncestorAt(zoom int) Cell {
	if zoom >= c.Z {
		return c
	}
	shift := uint(c.Z - zoom)
	return Cell{Z: zoom, X: c.X >> shift, Y: c.Y >> shift}
}
