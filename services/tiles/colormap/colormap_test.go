// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package colormap

import (
	"image/color"
	"math"
	"reflect"
	"testing"
)

func TestGet(t *testing.T) {
	for _, name := range []string{"rdylgn", "viridis", "gray", "RdYlGn"} {
		if _, err := Get(name); err != nil {
			t.Errorf("Get(%q) failed: %v", name, err)
		}
	}
	if _, err := Get("plasma"); err == nil {
		t.Error("Get(plasma) succeeded, want error")
	}
}

func TestNames(t *testing.T) {
	want := []string{"gray", "rdylgn", "viridis"}
	if got := Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestAtEndpointsAndClamping(t *testing.T) {
	m, err := Get("rdylgn")
	if err != nil {
		t.Fatal(err)
	}

	low := color.NRGBA{R: 0xa5, G: 0x00, B: 0x26, A: 0xff}
	high := color.NRGBA{R: 0x00, G: 0x68, B: 0x37, A: 0xff}

	tests := []struct {
		name string
		v    float64
		want color.NRGBA
	}{
		{"zero", 0, low},
		{"one", 1, high},
		{"below range clamps", -3, low},
		{"above range clamps", 2, high},
		{"midpoint", 0.5, color.NRGBA{R: 0xff, G: 0xff, B: 0xbf, A: 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.At(tt.v); got != tt.want {
				t.Errorf("At(%v) = %+v, want %+v", tt.v, got, tt.want)
			}
		})
	}
}

func TestAtInterpolates(t *testing.T) {
	m, err := Get("gray")
	if err != nil {
		t.Fatal(err)
	}
	got := m.At(0.5)
	want := color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	if got != want {
		t.Errorf("gray At(0.5) = %+v, want %+v", got, want)
	}
}

func TestNaNIsTransparent(t *testing.T) {
	for _, name := range Names() {
		m, err := Get(name)
		if err != nil {
			t.Fatal(err)
		}
		if got := m.At(math.NaN()); got != Nodata {
			t.Errorf("%s At(NaN) = %+v, want transparent", name, got)
		}
	}
}

// Every non-NaN input must produce a fully opaque pixel.
func TestOpacity(t *testing.T) {
	m, _ := Get("viridis")
	for v := -0.5; v <= 1.5; v += 0.05 {
		if got := m.At(v); got.A != 0xff {
			t.Fatalf("At(%v) alpha = %d, want 255", v, got.A)
		}
	}
}
