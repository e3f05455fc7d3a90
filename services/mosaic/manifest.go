// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package mosaic builds and stores weekly mosaic manifests: lightweight
// virtual aggregations mapping spatial index cells to per-band remote
// asset locators. A manifest never embeds pixel data; at tens of
// kilobytes it is cheap to regenerate and cheap to fetch on every tile
// request (a CDN in front absorbs the read load).
package mosaic

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// FormatVersion is bumped on incompatible manifest schema changes.
const FormatVersion = 1

// IndexZoom is the spatial-index tiling level. Zoom 8 cells are ~150 km
// across at the equator, comfortably smaller than one satellite scene, so
// one representative scene covers each cell.
const IndexZoom = 8

// Default zoom range served from a manifest.
const (
	DefaultMinZoom = IndexZoom
	DefaultMaxZoom = 14
)

var weekBucketPattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// Manifest is a named, versioned index for one collection and time bucket.
// Immutable once written; the builder replaces it wholesale on rebuild.
type Manifest struct {
	FormatVersion int    `json:"format_version"`
	Name          string `json:"name"`
	Collection    string `json:"collection"`
	WeekBucket    string `json:"week_bucket"`
	MinZoom       int    `json:"min_zoom"`
	MaxZoom       int    `json:"max_zoom"`

	// SpatialIndex maps a quadkey at IndexZoom to the representative
	// scene's band locators for that cell.
	SpatialIndex map[string]map[string]string `json:"spatial_index"`

	CreatedAt time.Time `json:"created_at"`
}

// ManifestName builds the canonical manifest name for a collection and
// ISO week bucket, e.g. "optical-2026-W05".
func ManifestName(collection, weekBucket string) string {
	return collection + "-" + weekBucket
}

// WeekRange resolves an ISO week bucket like "2026-W05" to its UTC time
// range [monday, next monday).
func WeekRange(bucket string) (time.Time, time.Time, error) {
	m := weekBucketPattern.FindStringSubmatch(bucket)
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("mosaic: bad week bucket %q (want YYYY-Www)", bucket)
	}
	year, _ := strconv.Atoi(m[1])
	week, _ := strconv.Atoi(m[2])
	if week < 1 || week > 53 {
		return time.Time{}, time.Time{}, fmt.Errorf("mosaic: week %d out of range in %q", week, bucket)
	}

	// ISO 8601: week 1 contains January 4th; weeks start on Monday.
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	start := week1Monday.AddDate(0, 0, (week-1)*7)

	if y, w := start.ISOWeek(); y != year || w != week {
		return time.Time{}, time.Time{}, fmt.Errorf("mosaic: year %d has no week %d", year, week)
	}
	return start, start.AddDate(0, 0, 7), nil
}

// CurrentWeekBucket formats t's ISO week as a bucket string.
func CurrentWeekBucket(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
