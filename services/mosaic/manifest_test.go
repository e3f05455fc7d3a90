// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mosaic

import (
	"testing"
	"time"
)

func TestWeekRange(t *testing.T) {
	tests := []struct {
		bucket    string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"2026-W05",
			time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			"2026-W01",
			time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			// 2020 is a 53-week ISO year.
			"2020-W53",
			time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC),
			time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.bucket, func(t *testing.T) {
			start, end, err := WeekRange(tt.bucket)
			if err != nil {
				t.Fatalf("WeekRange(%q) failed: %v", tt.bucket, err)
			}
			if !start.Equal(tt.wantStart) {
				t.Errorf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("end = %v, want %v", end, tt.wantEnd)
			}
			if start.Weekday() != time.Monday {
				t.Errorf("week starts on %v, want Monday", start.Weekday())
			}
		})
	}
}

func TestWeekRangeErrors(t *testing.T) {
	for _, bucket := range []string{
		"", "2026", "2026-05", "2026-W00", "2026-W54", "2026-W5", "26-W05",
		// 2023 is a 52-week ISO year, so week 53 does not exist in it.
		"2023-W53",
	} {
		if _, _, err := WeekRange(bucket); err == nil {
			t.Errorf("WeekRange(%q) succeeded, want error", bucket)
		}
	}
}

func TestWeekRangeRoundTrip(t *testing.T) {
	start, end, err := WeekRange("2026-W05")
	if err != nil {
		t.Fatal(err)
	}
	if CurrentWeekBucket(start) != "2026-W05" {
		t.Errorf("bucket of start = %q", CurrentWeekBucket(start))
	}
	if CurrentWeekBucket(end.Add(-time.Second)) != "2026-W05" {
		t.Errorf("bucket of last instant = %q", CurrentWeekBucket(end.Add(-time.Second)))
	}
	if CurrentWeekBucket(end) != "2026-W06" {
		t.Errorf("bucket of end = %q", CurrentWeekBucket(end))
	}
}

func TestManifestName(t *testing.T) {
	if got := ManifestName("optical", "2026-W05"); got != "optical-2026-W05" {
		t.Errorf("ManifestName = %q", got)
	}
}
