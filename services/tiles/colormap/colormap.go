// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package colormap maps normalized raster values in [0, 1] to RGBA
// colors through named color ramps. Values are linearly interpolated
// between stops; NaN (nodata) maps to fully transparent black so the
// client's basemap shows through.
package colormap

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"
)

// Nodata is the pixel emitted for NaN input: fully transparent.
var Nodata = color.NRGBA{}

type stop struct {
	pos     float64
	r, g, b uint8
}

// Map is a named color ramp.
type Map struct {
	name  string
	stops []stop
}

// ramps mirror the matplotlib palettes tile clients expect. Stops are
// sparse; interpolation fills the gaps.
var ramps = map[string]*Map{
	"rdylgn": {
		name: "rdylgn",
		stops: []stop{
			{0.0, 0xa5, 0x00, 0x26},
			{0.25, 0xf4, 0x6d, 0x43},
			{0.5, 0xff, 0xff, 0xbf},
			{0.75, 0x66, 0xbd, 0x63},
			{1.0, 0x00, 0x68, 0x37},
		},
	},
	"viridis": {
		name: "viridis",
		stops: []stop{
			{0.0, 0x44, 0x01, 0x54},
			{0.25, 0x3b, 0x52, 0x8b},
			{0.5, 0x21, 0x91, 0x8c},
			{0.75, 0x5e, 0xc9, 0x62},
			{1.0, 0xfd, 0xe7, 0x25},
		},
	},
	"gray": {
		name: "gray",
		stops: []stop{
			{0.0, 0x00, 0x00, 0x00},
			{1.0, 0xff, 0xff, 0xff},
		},
	},
}

// Names lists the available ramps, sorted.
func Names() []string {
	names := make([]string, 0, len(ramps))
	for name := range ramps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get resolves a ramp by name, case-insensitively.
func Get(name string) (*Map, error) {
	m, ok := ramps[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("colormap: unknown colormap %q (have %s)", name, strings.Join(Names(), ", "))
	}
	return m, nil
}

// Name returns the ramp's canonical name.
func (m *Map) Name() string { return m.name }

// At maps a normalized value to a color. Values outside [0, 1] clamp to
// the ramp ends; NaN yields Nodata.
func (m *Map) At(v float64) color.NRGBA {
	if math.IsNaN(v) {
		return Nodata
	}
	if v <= m.stops[0].pos {
		s := m.stops[0]
		return color.NRGBA{R: s.r, G: s.g, B: s.b, A: 0xff}
	}
	last := m.stops[len(m.stops)-1]
	if v >= last.pos {
		return color.NRGBA{R: last.r, G: last.g, B: last.b, A: 0xff}
	}

	hi := 1
	for m.stops[hi].pos < v {
		hi++
	}
	lo := m.stops[hi-1]
	span := m.stops[hi].pos - lo.pos
	t := (v - lo.pos) / span
	return color.NRGBA{
		R: lerp(lo.r, m.stops[hi].r, t),
		G: lerp(lo.g, m.stops[hi].g, t),
		B: lerp(lo.b, m.stops[hi].b, t),
		A: 0xff,
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
