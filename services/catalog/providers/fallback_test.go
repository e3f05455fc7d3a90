// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/raster"
)

// stubProvider is a scriptable CatalogProvider for chain tests.
type stubProvider struct {
	name        string
	collections []string
	searchErr   error
	scenes      []datatypes.Scene
	searchCalls int
	healthy     bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Collections() []string { return s.collections }

func (s *stubProvider) Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	s.searchCalls++
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	scenes := make([]datatypes.Scene, len(s.scenes))
	copy(scenes, s.scenes)
	return &datatypes.SearchResult{Scenes: scenes}, nil
}

func (s *stubProvider) ResolveAsset(ctx context.Context, locator string) (string, error) {
	if s.searchErr != nil {
		return "", s.searchErr
	}
	return "https://" + s.name + "/" + locator, nil
}

func (s *stubProvider) FetchBand(ctx context.Context, locator string, clip datatypes.BoundingBox, width, height int) (*raster.Window, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return raster.NewWindow(width, height), nil
}

func (s *stubProvider) HealthCheck(ctx context.Context) bool { return s.healthy }

func testSearchRequest() datatypes.SearchRequest {
	return datatypes.SearchRequest{
		BBox:        datatypes.BoundingBox{West: -48, South: -23, East: -47, North: -22},
		Start:       time.Date(2026, 1, 26, 0, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
		Collections: []string{"optical"},
	}
}

func TestFallbackChainUsesPriorityOrder(t *testing.T) {
	primary := &stubProvider{name: "primary", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "a"}}}
	secondary := &stubProvider{name: "secondary", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "b"}}}
	chain := NewFallbackChain(StaticProviders{primary, secondary}, nil, nil)

	result, err := chain.Search(context.Background(), testSearchRequest())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Provider != "primary" {
		t.Errorf("served by %q, want primary", result.Provider)
	}
	if secondary.searchCalls != 0 {
		t.Errorf("secondary was called %d times, want 0", secondary.searchCalls)
	}
	if result.Scenes[0].Provider != "primary" {
		t.Errorf("scene provider = %q, want primary", result.Scenes[0].Provider)
	}
}

func TestFallbackChainFailsOver(t *testing.T) {
	primary := &stubProvider{name: "primary", collections: []string{"optical"},
		searchErr: errors.New("upstream 503")}
	secondary := &stubProvider{name: "secondary", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "b"}}}
	chain := NewFallbackChain(StaticProviders{primary, secondary}, nil, nil)

	result, err := chain.Search(context.Background(), testSearchRequest())
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if result.Provider != "secondary" {
		t.Errorf("served by %q, want secondary", result.Provider)
	}

	// The failure was charged to primary's breaker only.
	if got := chain.Breakers().For("primary").Failures(); got != 1 {
		t.Errorf("primary failures = %d, want 1", got)
	}
	if got := chain.Breakers().For("secondary").Failures(); got != 0 {
		t.Errorf("secondary failures = %d, want 0", got)
	}
}

func TestFallbackChainSkipsNonMatchingCollections(t *testing.T) {
	radarOnly := &stubProvider{name: "radar-only", collections: []string{"radar"},
		scenes: []datatypes.Scene{{ID: "r"}}}
	optical := &stubProvider{name: "optical", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "o"}}}
	chain := NewFallbackChain(StaticProviders{radarOnly, optical}, nil, nil)

	result, err := chain.Search(context.Background(), testSearchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if result.Provider != "optical" {
		t.Errorf("served by %q, want optical", result.Provider)
	}
	if radarOnly.searchCalls != 0 {
		t.Error("collection-mismatched provider was called")
	}
}

func TestFallbackChainSkipsOpenCircuit(t *testing.T) {
	primary := &stubProvider{name: "primary", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "a"}}}
	secondary := &stubProvider{name: "secondary", collections: []string{"optical"},
		scenes: []datatypes.Scene{{ID: "b"}}}

	breakers := NewBreakerSet(BreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	breakers.For("primary").RecordFailure()
	chain := NewFallbackChain(StaticProviders{primary, secondary}, breakers, nil)

	result, err := chain.Search(context.Background(), testSearchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if result.Provider != "secondary" {
		t.Errorf("served by %q, want secondary", result.Provider)
	}
	if primary.searchCalls != 0 {
		t.Error("open-circuit provider was called")
	}
}

func TestFallbackChainAllFail(t *testing.T) {
	cause := errors.New("upstream down")
	a := &stubProvider{name: "a", collections: []string{"optical"}, searchErr: cause}
	b := &stubProvider{name: "b", collections: []string{"optical"}, searchErr: cause}
	chain := NewFallbackChain(StaticProviders{a, b}, nil, nil)

	_, err := chain.Search(context.Background(), testSearchRequest())
	var allFailed *AllProvidersFailed
	if !errors.As(err, &allFailed) {
		t.Fatalf("err = %v, want AllProvidersFailed", err)
	}
	if allFailed.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", allFailed.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Error("AllProvidersFailed should unwrap to the last cause")
	}
}

func TestFallbackChainRejectsBadRequest(t *testing.T) {
	chain := NewFallbackChain(StaticProviders{}, nil, nil)
	req := testSearchRequest()
	req.BBox.East = req.BBox.West - 1

	if _, err := chain.Search(context.Background(), req); !errors.Is(err, datatypes.ErrInvalidGeometry) {
		t.Errorf("err = %v, want ErrInvalidGeometry", err)
	}
}

func TestFallbackChainResolveAndFetchFailOver(t *testing.T) {
	broken := &stubProvider{name: "broken", searchErr: errors.New("boom")}
	working := &stubProvider{name: "working"}
	chain := NewFallbackChain(StaticProviders{broken, working}, nil, nil)

	href, err := chain.ResolveAsset(context.Background(), "asset/x")
	if err != nil {
		t.Fatalf("ResolveAsset failed: %v", err)
	}
	if href != "https://working/asset/x" {
		t.Errorf("resolved %q via wrong provider", href)
	}

	win, err := chain.FetchBand(context.Background(), href,
		datatypes.BoundingBox{West: 0, South: 0, East: 1, North: 1}, 4, 4)
	if err != nil {
		t.Fatalf("FetchBand failed: %v", err)
	}
	if win.Width != 4 || win.Height != 4 {
		t.Errorf("window = %dx%d, want 4x4", win.Width, win.Height)
	}
}

func TestFallbackChainHealthAndCollections(t *testing.T) {
	a := &stubProvider{name: "a", collections: []string{"optical"}}
	b := &stubProvider{name: "b", collections: []string{"optical", "radar"}, healthy: true}
	chain := NewFallbackChain(StaticProviders{a, b}, nil, nil)

	if !chain.HealthCheck(context.Background()) {
		t.Error("chain with one healthy provider reported unhealthy")
	}
	cols := chain.Collections()
	if len(cols) != 2 {
		t.Errorf("Collections() = %v, want optical+radar", cols)
	}
}
