// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tiles renders XYZ map tiles from mosaic manifests: it resolves
// the tile's index cell, pulls the referenced band windows through the
// provider stack, evaluates a band-algebra expression per pixel, and
// colormaps the result into a PNG.
package tiles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/observability"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/raster"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/mosaic"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles/colormap"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles/expr"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles/mercator"
)

// TileSize is the pixel edge of every rendered tile.
const TileSize = 256

// fetchConcurrency bounds parallel band fetches for one tile.
const fetchConcurrency = 4

// ErrZoomRange is returned when a requested zoom falls outside the
// manifest's serving range.
var ErrZoomRange = errors.New("tiles: zoom outside manifest range")

// ErrBadCell is returned for tile coordinates that do not exist at the
// requested zoom.
var ErrBadCell = errors.New("tiles: invalid tile coordinates")

// Rescale maps raw expression output onto [0, 1] before colormapping.
type Rescale struct {
	Min float64
	Max float64
}

// DefaultRescale suits reflectance-style indices in [-1, 1].
var DefaultRescale = Rescale{Min: -1, Max: 1}

// Request names everything needed to render one tile.
type Request struct {
	Manifest   string
	Cell       mercator.Cell
	Expression string
	Colormap   string
	Rescale    Rescale
}

// Service renders tiles. Safe for concurrent use.
type Service struct {
	store    mosaic.Store
	provider providers.CatalogProvider
	logger   *slog.Logger

	nodataOnce sync.Once
	nodataPNG  []byte
}

// NewService wires the renderer over a manifest store and the provider
// stack (normally the cached fallback chain).
func NewService(store mosaic.Store, provider providers.CatalogProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, provider: provider, logger: logger}
}

// Render produces the PNG for one tile request.
//
// A tile with no coverage in the manifest's spatial index renders as the
// deterministic fully transparent nodata tile rather than an error, so
// map clients panning past the mosaic edge see basemap instead of broken
// tiles. Upstream fetch failure after all fallbacks likewise degrades to
// the nodata tile; only bad input and a missing manifest surface as
// errors.
func (s *Service) Render(ctx context.Context, req Request) ([]byte, error) {
	started := time.Now()
	out, err := s.render(ctx, req)
	if observability.Default != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.Default.TilesRenderedTotal.WithLabelValues(status).Inc()
		observability.Default.TileRenderSeconds.Observe(time.Since(started).Seconds())
	}
	return out, err
}

func (s *Service) render(ctx context.Context, req Request) ([]byte, error) {
	if !req.Cell.Valid() {
		return nil, fmt.Errorf("%w: %d/%d/%d", ErrBadCell, req.Cell.Z, req.Cell.X, req.Cell.Y)
	}
	if req.Rescale.Max <= req.Rescale.Min {
		return nil, fmt.Errorf("tiles: rescale max %g must exceed min %g", req.Rescale.Max, req.Rescale.Min)
	}

	parsed, err := expr.Parse(req.Expression)
	if err != nil {
		return nil, err
	}
	for _, band := range parsed.Bands() {
		if !datatypes.CanonicalBands[band] {
			return nil, fmt.Errorf("tiles: unknown band %q in expression", band)
		}
	}
	ramp, err := colormap.Get(req.Colormap)
	if err != nil {
		return nil, err
	}

	manifest, err := s.store.Get(ctx, req.Manifest)
	if err != nil {
		return nil, err
	}
	if req.Cell.Z < manifest.MinZoom || req.Cell.Z > manifest.MaxZoom {
		return nil, fmt.Errorf("%w: z=%d, manifest %s serves %d-%d",
			ErrZoomRange, req.Cell.Z, manifest.Name, manifest.MinZoom, manifest.MaxZoom)
	}

	assets, ok := manifest.SpatialIndex[req.Cell.AncestorAt(mosaic.IndexZoom).Quadkey()]
	if !ok {
		return s.nodataTile(), nil
	}
	for _, band := range parsed.Bands() {
		if assets[band] == "" {
			// Indexed scene lacks a band the expression needs.
			return s.nodataTile(), nil
		}
	}

	bands, err := s.fetchBands(ctx, parsed.Bands(), assets, req.Cell.Bounds())
	if err != nil {
		var allFailed *providers.AllProvidersFailed
		if errors.As(err, &allFailed) {
			s.logger.Warn("all providers failed for tile, serving nodata",
				"manifest", req.Manifest,
				"tile", fmt.Sprintf("%d/%d/%d", req.Cell.Z, req.Cell.X, req.Cell.Y),
				"error", err)
			return s.nodataTile(), nil
		}
		return nil, err
	}

	values := parsed.Eval(bands, TileSize*TileSize)
	return encodeTile(values, ramp, req.Rescale)
}

// fetchBands resolves and fetches each band window concurrently.
func (s *Service) fetchBands(ctx context.Context, names []string, assets map[string]string, clip datatypes.BoundingBox) (map[string][]float64, error) {
	bands := make(map[string][]float64, len(names))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for _, name := range names {
		g.Go(func() error {
			href, err := s.provider.ResolveAsset(gctx, assets[name])
			if err != nil {
				return fmt.Errorf("resolve band %s: %w", name, err)
			}
			window, err := s.provider.FetchBand(gctx, href, clip, TileSize, TileSize)
			if err != nil {
				return fmt.Errorf("fetch band %s: %w", name, err)
			}
			if len(window.Samples) != TileSize*TileSize {
				return fmt.Errorf("%w: band %s window is %dx%d, want %dx%d",
					raster.ErrBadFormat, name, window.Width, window.Height, TileSize, TileSize)
			}
			mu.Lock()
			bands[name] = window.Samples
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bands, nil
}

// encodeTile normalizes, colormaps and PNG-encodes one value grid.
func encodeTile(values []float64, ramp *colormap.Map, rescale Rescale) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
	span := rescale.Max - rescale.Min
	for y := 0; y < TileSize; y++ {
		for x := 0; x < TileSize; x++ {
			v := values[y*TileSize+x]
			if !math.IsNaN(v) {
				v = (v - rescale.Min) / span
			}
			img.SetNRGBA(x, y, ramp.At(v))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("tiles: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// nodataTile lazily encodes the shared fully transparent tile once.
func (s *Service) nodataTile() []byte {
	s.nodataOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, TileSize, TileSize))
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			panic(fmt.Sprintf("tiles: encode nodata tile: %v", err))
		}
		s.nodataPNG = buf.Bytes()
	})
	return s.nodataPNG
}
