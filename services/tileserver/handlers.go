// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/pkg/validation"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/mosaic"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles/mercator"
)

// defaultColormap is applied when a tile request names none.
const defaultColormap = "rdylgn"

// reprocessTimeout bounds one background mosaic rebuild.
const reprocessTimeout = 30 * time.Minute

// Server carries the handler dependencies.
type Server struct {
	tiles    *tiles.Service
	store    mosaic.Store
	builder  *mosaic.Builder
	breakers *providers.BreakerSet
	logger   *slog.Logger
}

// NewServer wires the HTTP surface. builder must use the cache-bypassing
// provider chain so reprocessing always reflects live catalogs.
func NewServer(tileSvc *tiles.Service, store mosaic.Store, builder *mosaic.Builder, breakers *providers.BreakerSet, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{tiles: tileSvc, store: store, builder: builder, breakers: breakers, logger: logger}
}

// RegisterRoutes attaches all endpoints to the router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/manifests/:name", s.handleGetManifest)
		v1.GET("/tiles/:manifest/:z/:x/:y", s.handleTile)
		v1.GET("/providers/health", s.handleProviderHealth)
		v1.POST("/reprocess", s.handleReprocess)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "tileserver"})
}

// handleProviderHealth exposes circuit breaker states for operators.
func (s *Server) handleProviderHealth(c *gin.Context) {
	states := make(map[string]string)
	for name, state := range s.breakers.States() {
		states[name] = state.String()
	}
	c.JSON(http.StatusOK, gin.H{"breakers": states})
}

func (s *Server) handleGetManifest(c *gin.Context) {
	if err := validation.ValidateManifestName(c.Param("name")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	manifest, err := s.store.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, mosaic.ErrManifestNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("manifest read failed", "name", c.Param("name"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "manifest store unavailable"})
		return
	}
	c.JSON(http.StatusOK, manifest)
}

// handleTile serves GET /v1/tiles/:manifest/:z/:x/:y?expression=...&colormap=...&rescale=min,max
// The :y segment accepts an optional .png suffix.
func (s *Server) handleTile(c *gin.Context) {
	req, err := parseTileRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := s.tiles.Render(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, mosaic.ErrManifestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, tiles.ErrBadCell), errors.Is(err, tiles.ErrZoomRange):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case strings.HasPrefix(err.Error(), "expr:"),
			strings.HasPrefix(err.Error(), "colormap:"),
			strings.HasPrefix(err.Error(), "tiles:"):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.Error("tile render failed",
				"manifest", req.Manifest,
				"tile", fmt.Sprintf("%d/%d/%d", req.Cell.Z, req.Cell.X, req.Cell.Y),
				"error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream providers unavailable"})
		}
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", data)
}

func parseTileRequest(c *gin.Context) (tiles.Request, error) {
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		return tiles.Request{}, fmt.Errorf("bad zoom %q", c.Param("z"))
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		return tiles.Request{}, fmt.Errorf("bad tile column %q", c.Param("x"))
	}
	y, err := strconv.Atoi(strings.TrimSuffix(c.Param("y"), ".png"))
	if err != nil {
		return tiles.Request{}, fmt.Errorf("bad tile row %q", c.Param("y"))
	}

	if err := validation.ValidateManifestName(c.Param("manifest")); err != nil {
		return tiles.Request{}, err
	}

	expression := c.Query("expression")
	if expression == "" {
		return tiles.Request{}, fmt.Errorf("missing required query parameter: expression")
	}

	rescale := tiles.DefaultRescale
	if raw := c.Query("rescale"); raw != "" {
		rescale, err = parseRescale(raw)
		if err != nil {
			return tiles.Request{}, err
		}
	}

	cm := c.DefaultQuery("colormap", defaultColormap)
	return tiles.Request{
		Manifest:   c.Param("manifest"),
		Cell:       mercator.Cell{Z: z, X: x, Y: y},
		Expression: expression,
		Colormap:   cm,
		Rescale:    rescale,
	}, nil
}

func parseRescale(raw string) (tiles.Rescale, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return tiles.Rescale{}, fmt.Errorf("bad rescale %q (want min,max)", raw)
	}
	minV, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return tiles.Rescale{}, fmt.Errorf("bad rescale min %q", parts[0])
	}
	maxV, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return tiles.Rescale{}, fmt.Errorf("bad rescale max %q", parts[1])
	}
	if maxV <= minV {
		return tiles.Rescale{}, fmt.Errorf("rescale max %g must exceed min %g", maxV, minV)
	}
	return tiles.Rescale{Min: minV, Max: maxV}, nil
}

// reprocessRequest triggers an out-of-band mosaic rebuild.
type reprocessRequest struct {
	Collection string    `json:"collection" binding:"required"`
	WeekBucket string    `json:"week_bucket" binding:"required"`
	BBox       []float64 `json:"bbox" binding:"required"`
}

// handleReprocess accepts the rebuild and runs it in the background. The
// caller polls the manifest endpoint for completion; 202 only promises
// the job was admitted.
func (s *Server) handleReprocess(c *gin.Context) {
	var req reprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateIdentifier(req.Collection); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	region, err := datatypes.BBoxFromSlice(req.BBox)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, _, err := mosaic.WeekRange(req.WeekBucket); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New().String()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), reprocessTimeout)
		defer cancel()
		if _, err := s.builder.Build(ctx, req.Collection, req.WeekBucket, region); err != nil {
			s.logger.Error("reprocess failed",
				"job_id", jobID, "collection", req.Collection, "week", req.WeekBucket, "error", err)
			return
		}
		s.logger.Info("reprocess complete",
			"job_id", jobID, "collection", req.Collection, "week", req.WeekBucket)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   jobID,
		"manifest": mosaic.ManifestName(req.Collection, req.WeekBucket),
	})
}
