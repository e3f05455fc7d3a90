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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/registry"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/scenecache"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/mosaic"
)

var (
	flagProvidersConfig string
	flagManifestDir     string
	flagGCSBucket       string
	flagSAKeyPath       string

	flagCollection string
	flagWeek       string
	flagBBox       []float64

	flagCachePath  string
	flagMaxAgeDays int
)

var rootCmd = &cobra.Command{
	Use:   "campoctl",
	Short: "VivaCampo raster pipeline operations",
}

var mosaicCmd = &cobra.Command{
	Use:   "mosaic",
	Short: "Mosaic manifest operations",
}

var mosaicBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build one weekly mosaic manifest from the configured providers",
	RunE:  runMosaicBuild,
}

var manifestShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a stored manifest as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifestShow,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Scene cache maintenance",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete cached scenes older than the retention window",
	RunE:  runCachePurge,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvidersConfig, "providers-config",
		"configs/providers.yaml", "Provider registry YAML file")
	rootCmd.PersistentFlags().StringVar(&flagManifestDir, "manifest-dir",
		"/data/manifests", "Local manifest directory (ignored when --gcs-bucket is set)")
	rootCmd.PersistentFlags().StringVar(&flagGCSBucket, "gcs-bucket", "",
		"GCS bucket for manifests; empty means local files")
	rootCmd.PersistentFlags().StringVar(&flagSAKeyPath, "sa-key-path", "",
		"Optional service account key for GCS")

	mosaicBuildCmd.Flags().StringVar(&flagCollection, "collection", "optical",
		"Collection to mosaic (optical, radar, terrain)")
	mosaicBuildCmd.Flags().StringVar(&flagWeek, "week", "",
		"ISO week bucket like 2026-W05; empty means the current week")
	mosaicBuildCmd.Flags().Float64SliceVar(&flagBBox, "bbox", nil,
		"Region as west,south,east,north degrees")
	mosaicBuildCmd.MarkFlagRequired("bbox")

	cachePurgeCmd.Flags().StringVar(&flagCachePath, "cache-path",
		"/data/scenecache", "Scene cache directory")
	cachePurgeCmd.Flags().IntVar(&flagMaxAgeDays, "max-age-days", 90,
		"Retention window in days")

	mosaicCmd.AddCommand(mosaicBuildCmd, manifestShowCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(mosaicCmd, cacheCmd)
}

func newManifestStore(ctx context.Context) (mosaic.Store, error) {
	if flagGCSBucket != "" {
		return mosaic.NewGCSStore(ctx, flagGCSBucket, flagSAKeyPath)
	}
	return mosaic.NewFileStore(flagManifestDir)
}

func runMosaicBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	region, err := datatypes.BBoxFromSlice(flagBBox)
	if err != nil {
		return err
	}
	week := flagWeek
	if week == "" {
		week = mosaic.CurrentWeekBucket(time.Now())
	}

	reg, err := registry.New(flagProvidersConfig,
		&http.Client{Timeout: 60 * time.Second}, logger)
	if err != nil {
		return err
	}
	store, err := newManifestStore(ctx)
	if err != nil {
		return err
	}

	chain := providers.NewFallbackChain(reg, nil, logger)
	manifest, err := mosaic.NewBuilder(chain, store, logger).
		Build(ctx, flagCollection, week, region)
	if err != nil {
		return err
	}
	fmt.Printf("Built manifest %s: %d index cells\n", manifest.Name, len(manifest.SpatialIndex))
	return nil
}

func runManifestShow(cmd *cobra.Command, args []string) error {
	store, err := newManifestStore(cmd.Context())
	if err != nil {
		return err
	}
	manifest, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	cache, err := scenecache.Open(scenecache.Config{Path: flagCachePath})
	if err != nil {
		return err
	}
	defer cache.Close()

	purged, err := cache.PurgeOlderThan(cmd.Context(),
		time.Duration(flagMaxAgeDays)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("Purged %d stale scenes\n", purged)
	return nil
}
