// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package raster defines the single-band raster window exchanged between
// provider band fetches and tile compute.
//
// Providers deliver clipped band windows in a compact binary format
// ("VCR1"): a 12-byte header (magic, width, height as little-endian uint32)
// followed by width*height float32 samples in row-major order. NaN samples
// mark nodata and survive the round trip.
package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Magic identifies the band-window wire format.
const Magic = "VCR1"

// MaxPixels bounds decode allocations (1024x1024 window with headroom).
const MaxPixels = 4 << 20

// ErrBadFormat is returned when a payload is not a valid VCR1 window.
var ErrBadFormat = errors.New("raster: bad window format")

// Window is a decoded single-band raster clip. Samples are row-major,
// NaN means nodata.
type Window struct {
	Width   int
	Height  int
	Samples []float64
}

// At returns the sample at pixel (x, y). Out-of-range pixels read as NaN.
func (w *Window) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= w.Width || y >= w.Height {
		return math.NaN()
	}
	return w.Samples[y*w.Width+x]
}

// NewWindow allocates a window filled with nodata.
func NewWindow(width, height int) *Window {
	samples := make([]float64, width*height)
	nan := math.NaN()
	for i := range samples {
		samples[i] = nan
	}
	return &Window{Width: width, Height: height, Samples: samples}
}

// Decode reads a VCR1 window from r.
func Decode(r io.Reader) (*Window, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: short header: %v", ErrBadFormat, err)
	}
	if string(header[:4]) != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadFormat, header[:4])
	}
	width := int(binary.LittleEndian.Uint32(header[4:8]))
	height := int(binary.LittleEndian.Uint32(header[8:12]))
	if width <= 0 || height <= 0 || width*height > MaxPixels {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrBadFormat, width, height)
	}

	raw := make([]byte, width*height*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: short body: %v", ErrBadFormat, err)
	}

	samples := make([]float64, width*height)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	return &Window{Width: width, Height: height, Samples: samples}, nil
}

// Encode writes the window in VCR1 format. Samples outside float32 range
// are clamped by the float32 conversion.
func Encode(w io.Writer, win *Window) error {
	if win.Width <= 0 || win.Height <= 0 || len(win.Samples) != win.Width*win.Height {
		return fmt.Errorf("%w: inconsistent window %dx%d with %d samples",
			ErrBadFormat, win.Width, win.Height, len(win.Samples))
	}
	var header [12]byte
	copy(header[:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(win.Width))
	binary.LittleEndian.PutUint32(header[8:12], uint32(win.Height))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	raw := make([]byte, len(win.Samples)*4)
	for i, s := range win.Samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(float32(s)))
	}
	_, err := w.Write(raw)
	return err
}
