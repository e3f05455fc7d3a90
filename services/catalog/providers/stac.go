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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/raster"
)

const (
	defaultSearchLimit   = 100
	defaultCallTimeout   = 30 * time.Second
	healthCheckTimeout   = 5 * time.Second
	maxSearchAttempts    = 3
	searchBackoffInitial = 500 * time.Millisecond
)

// --- STAC wire structs ---

type stacSearchBody struct {
	BBox        []float64                 `json:"bbox"`
	Datetime    string                    `json:"datetime"`
	Collections []string                  `json:"collections"`
	Limit       int                       `json:"limit"`
	Query       map[string]map[string]any `json:"query,omitempty"`
}

type stacFeatureCollection struct {
	Type     string        `json:"type"`
	Features []stacFeature `json:"features"`
}

type stacFeature struct {
	ID         string               `json:"id"`
	BBox       []float64            `json:"bbox"`
	Geometry   json.RawMessage      `json:"geometry"`
	Properties stacProperties       `json:"properties"`
	Assets     map[string]stacAsset `json:"assets"`
}

type stacProperties struct {
	Datetime   string   `json:"datetime"`
	CloudCover *float64 `json:"eo:cloud_cover"`
	Platform   string   `json:"platform"`
}

type stacAsset struct {
	Href string `json:"href"`
}

// StacConfig configures one STAC-backed catalog provider.
type StacConfig struct {
	// Name keys this provider's circuit breaker and metrics.
	Name string

	// BaseURL is the STAC API root; search posts to BaseURL + "/search".
	BaseURL string

	// Collections lists the canonical collection names this provider serves.
	Collections []string

	// CollectionIDs maps canonical collection names to the provider's
	// upstream collection identifiers.
	CollectionIDs map[string]string

	// AssetKeys maps upstream asset keys to canonical band names. Upstream
	// assets without a mapping are dropped at ingest.
	AssetKeys map[string]string

	// RateLimit caps upstream requests per second. Zero disables limiting.
	RateLimit float64

	// Timeout bounds every upstream call. Default 30s.
	Timeout time.Duration
}

// StacProvider talks to a public STAC API that needs no credential for
// read access. It is also embedded by SignedProvider, which layers token
// auth and asset signing on top of the same search mechanics.
type StacProvider struct {
	config  StacConfig
	client  HTTPClient
	limiter *rate.Limiter
	logger  *slog.Logger

	// authorize decorates outgoing requests with credentials. Nil for
	// public catalogs.
	authorize func(ctx context.Context, req *http.Request) error

	// refreshAuth drops cached credentials after an auth failure. Nil for
	// public catalogs, where a 401 is permanent.
	refreshAuth func(ctx context.Context) error
}

// NewStacProvider creates a provider for a public STAC catalog.
func NewStacProvider(config StacConfig, client HTTPClient, logger *slog.Logger) *StacProvider {
	if config.Timeout <= 0 {
		config.Timeout = defaultCallTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return &StacProvider{
		config:  config,
		client:  client,
		limiter: limiter,
		logger:  logger.With("provider", config.Name),
	}
}

func (p *StacProvider) Name() string { return p.config.Name }

func (p *StacProvider) Collections() []string { return p.config.Collections }

// Search posts a STAC item search. Transient upstream errors (429, 5xx,
// timeouts) retry with exponential backoff up to maxSearchAttempts; an auth
// expiry triggers one credential refresh and a single extra attempt.
func (p *StacProvider) Search(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	operation := func() (*datatypes.SearchResult, error) {
		result, err := p.searchOnce(ctx, req)
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = searchBackoffInitial

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(maxSearchAttempts))
	if err == nil {
		return result, nil
	}

	// Auth expiry gets one token refresh and a single retry, then escalates.
	var authErr *AuthError
	if errors.As(err, &authErr) && p.refreshAuth != nil {
		p.logger.Warn("auth expired, refreshing token", "error", authErr.Cause)
		if rerr := p.refreshAuth(ctx); rerr != nil {
			return nil, &AuthError{Provider: p.config.Name, Cause: rerr}
		}
		return p.searchOnce(ctx, req)
	}
	return nil, err
}

func (p *StacProvider) searchOnce(ctx context.Context, req datatypes.SearchRequest) (*datatypes.SearchResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	body := stacSearchBody{
		BBox: req.BBox.Slice(),
		Datetime: fmt.Sprintf("%s/%s",
			req.Start.UTC().Format(time.RFC3339), req.End.UTC().Format(time.RFC3339)),
		Collections: p.upstreamCollections(req.Collections),
		Limit:       limit,
	}
	if req.MaxCloudCover != nil {
		body.Query = map[string]map[string]any{
			"eo:cloud_cover": {"lte": *req.MaxCloudCover},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	var fc stacFeatureCollection
	if err := p.doJSON(ctx, http.MethodPost, p.config.BaseURL+"/search", payload, &fc); err != nil {
		return nil, err
	}

	scenes := make([]datatypes.Scene, 0, len(fc.Features))
	now := time.Now().UTC()
	for _, feat := range fc.Features {
		scene, ok := p.sceneFromFeature(feat, req.Collections, now)
		if !ok {
			continue
		}
		scenes = append(scenes, scene)
	}
	p.logger.Debug("search complete", "scenes", len(scenes))
	return &datatypes.SearchResult{Scenes: scenes, Provider: p.config.Name}, nil
}

// sceneFromFeature normalizes one STAC item. Features with no mappable
// assets or an unparseable timestamp are skipped rather than failing the
// whole page.
func (p *StacProvider) sceneFromFeature(feat stacFeature, requested []string, fetchedAt time.Time) (datatypes.Scene, bool) {
	acquired, err := time.Parse(time.RFC3339, feat.Properties.Datetime)
	if err != nil {
		p.logger.Warn("skipping feature with bad datetime", "id", feat.ID, "datetime", feat.Properties.Datetime)
		return datatypes.Scene{}, false
	}
	bbox, err := datatypes.BBoxFromSlice(feat.BBox)
	if err != nil {
		p.logger.Warn("skipping feature with bad bbox", "id", feat.ID)
		return datatypes.Scene{}, false
	}

	assets := make(map[string]string)
	for key, asset := range feat.Assets {
		canonical, ok := p.config.AssetKeys[key]
		if !ok || !datatypes.CanonicalBands[canonical] {
			continue
		}
		assets[canonical] = asset.Href
	}
	if len(assets) == 0 {
		return datatypes.Scene{}, false
	}

	collection := ""
	if len(requested) > 0 {
		collection = requested[0]
	} else if len(p.config.Collections) > 0 {
		collection = p.config.Collections[0]
	}

	return datatypes.Scene{
		ID:         feat.ID,
		Provider:   p.config.Name,
		Collection: collection,
		AcquiredAt: acquired.UTC(),
		CloudCover: feat.Properties.CloudCover,
		Platform:   feat.Properties.Platform,
		BBox:       bbox,
		Footprint:  feat.Geometry,
		Assets:     assets,
		FetchedAt:  fetchedAt,
	}, true
}

// ResolveAsset is the identity for public catalogs: locators are fetchable
// as returned.
func (p *StacProvider) ResolveAsset(_ context.Context, locator string) (string, error) {
	return locator, nil
}

// FetchBand downloads a clipped, resampled band window. The upstream raster
// endpoint returns the VCR1 wire format (see services/catalog/raster).
// Signed locators already carry a query string, so the window parameters are
// merged rather than appended.
func (p *StacProvider) FetchBand(ctx context.Context, locator string, clip datatypes.BoundingBox, width, height int) (*raster.Window, error) {
	if err := clip.Validate(); err != nil {
		return nil, err
	}
	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("providers: bad asset locator: %w", err)
	}
	q := u.Query()
	q.Set("bbox", fmt.Sprintf("%g,%g,%g,%g", clip.West, clip.South, clip.East, clip.North))
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	u.RawQuery = q.Encode()

	resp, err := p.do(ctx, http.MethodGet, u.String(), nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	win, err := raster.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode band window from %s: %w", p.config.Name, err)
	}
	return win, nil
}

// HealthCheck probes the catalog root. Bounded at 5s and never errors.
func (p *StacProvider) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode < http.StatusInternalServerError
}

// upstreamCollections translates canonical collection names to the
// provider's own identifiers, passing unknown names through untouched.
func (p *StacProvider) upstreamCollections(canonical []string) []string {
	if len(canonical) == 0 {
		canonical = p.config.Collections
	}
	out := make([]string, 0, len(canonical))
	for _, c := range canonical {
		if id, ok := p.config.CollectionIDs[c]; ok {
			out = append(out, id)
		} else {
			out = append(out, c)
		}
	}
	return out
}

// do issues one rate-limited, timeout-bounded request and classifies the
// response status into the provider error taxonomy. The caller owns the
// response body on success.
func (p *StacProvider) do(ctx context.Context, method, url string, payload []byte, header http.Header) (*http.Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Provider: p.config.Name, Op: method, Cause: err}
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.authorize != nil {
		if err := p.authorize(ctx, req); err != nil {
			cancel()
			return nil, &AuthError{Provider: p.config.Name, Cause: err}
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		// Timeouts and connection failures count as transient.
		return nil, &TransientError{Provider: p.config.Name, Op: method, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// Tie the timeout to the body's lifetime.
		resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drainClose(resp)
		cancel()
		return nil, &AuthError{Provider: p.config.Name,
			Cause: fmt.Errorf("upstream returned status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		drainClose(resp)
		cancel()
		return nil, &TransientError{Provider: p.config.Name, Op: method,
			StatusCode: resp.StatusCode, Cause: fmt.Errorf("upstream returned status %d", resp.StatusCode)}
	default:
		drainClose(resp)
		cancel()
		return nil, fmt.Errorf("providers: %s returned status %d for %s", p.config.Name, resp.StatusCode, method)
	}
}

// doJSON runs do and decodes a JSON body into out.
func (p *StacProvider) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	resp, err := p.do(ctx, method, url, payload, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response from %s: %w", method, p.config.Name, err)
	}
	return nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drainClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
