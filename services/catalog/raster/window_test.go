// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package raster

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	win := &Window{
		Width:  3,
		Height: 2,
		Samples: []float64{
			0.1, 0.2, 0.3,
			-1.5, math.NaN(), 10000,
		},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, win); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != 12+3*2*4 {
		t.Errorf("encoded length = %d", buf.Len())
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("decoded %dx%d", got.Width, got.Height)
	}
	// Nodata survives the float32 round trip.
	if !math.IsNaN(got.At(1, 1)) {
		t.Errorf("At(1,1) = %v, want NaN", got.At(1, 1))
	}
	if math.Abs(got.At(2, 0)-0.3) > 1e-6 {
		t.Errorf("At(2,0) = %v", got.At(2, 0))
	}
	if got.At(0, 1) != -1.5 {
		t.Errorf("At(0,1) = %v", got.At(0, 1))
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	badDims := func(w, h uint32) []byte {
		var b bytes.Buffer
		b.WriteString(Magic)
		binary.Write(&b, binary.LittleEndian, w)
		binary.Write(&b, binary.LittleEndian, h)
		return b.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", []byte("VCR1\x01")},
		{"wrong magic", append([]byte("TIFF"), badDims(1, 1)[4:]...)},
		{"zero width", badDims(0, 4)},
		{"oversized", badDims(1<<16, 1<<16)},
		{"truncated body", append(badDims(4, 4), 0x01, 0x02)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrBadFormat) {
				t.Errorf("err = %v, want ErrBadFormat", err)
			}
		})
	}
}

func TestEncodeRejectsInconsistentWindow(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, &Window{Width: 2, Height: 2, Samples: make([]float64, 3)})
	if !errors.Is(err, ErrBadFormat) {
		t.Errorf("err = %v, want ErrBadFormat", err)
	}
}

func TestAtOutOfRange(t *testing.T) {
	win := NewWindow(2, 2)
	for _, p := range [][2]int{{-1, 0}, {0, -1}, {2, 0}, {0, 2}} {
		if !math.IsNaN(win.At(p[0], p[1])) {
			t.Errorf("At(%d,%d) should be NaN", p[0], p[1])
		}
	}
}
