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
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/pkg/logging"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/observability"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/registry"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/scenecache"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/mosaic"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/tiles"
)

// maxSceneAge is how long cached scene metadata stays useful; older
// entries are purged on the maintenance schedule.
const maxSceneAge = 90 * 24 * time.Hour

// purgeInterval is how often the cache maintenance loop runs.
const purgeInterval = 24 * time.Hour

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// No collector configured; tracing stays off.
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("tileserver")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newManifestStore picks the store backend from the environment:
// MANIFEST_STORE=gcs uses GCS_BUCKET (and optionally GOOGLE_SA_KEY_PATH);
// anything else is a local directory under MANIFEST_DIR.
func newManifestStore(ctx context.Context) (mosaic.Store, error) {
	if getEnv("MANIFEST_STORE", "file") == "gcs" {
		bucket := os.Getenv("GCS_BUCKET")
		if bucket == "" {
			return nil, errors.New("MANIFEST_STORE=gcs requires GCS_BUCKET")
		}
		return mosaic.NewGCSStore(ctx, bucket, os.Getenv("GOOGLE_SA_KEY_PATH"))
	}
	return mosaic.NewFileStore(getEnv("MANIFEST_DIR", "/data/manifests"))
}

func main() {
	port := getEnv("TILESERVER_PORT", "12400")

	logger := logging.FromEnv()
	slog.SetDefault(logger)

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Provider registry, hot-reloaded on config changes.
	reg, err := registry.New(getEnv("PROVIDERS_CONFIG", "configs/providers.yaml"),
		&http.Client{Timeout: 60 * time.Second}, logger)
	if err != nil {
		log.Fatalf("failed to load provider registry: %v", err)
	}
	go func() {
		if err := reg.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("registry watcher stopped", "error", err)
		}
	}()

	// Scene metadata cache.
	cache, err := scenecache.Open(scenecache.Config{
		Path:   getEnv("SCENE_CACHE_PATH", "/data/scenecache"),
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to open scene cache: %v", err)
	}
	defer cache.Close()
	go purgeLoop(ctx, cache, logger)

	// Provider stack: prioritized fallback chain, then the cache layer.
	chain := providers.NewFallbackChain(reg, nil, logger)
	go breakerGaugeLoop(ctx, chain.Breakers())
	stack := providers.NewCachedProvider(chain, cache, logger)

	store, err := newManifestStore(ctx)
	if err != nil {
		log.Fatalf("failed to create manifest store: %v", err)
	}

	tileSvc := tiles.NewService(store, stack, logger)
	// Reprocessing bypasses the scene cache so rebuilt mosaics always
	// reflect the live catalogs.
	builder := mosaic.NewBuilder(chain, store, logger)
	server := NewServer(tileSvc, store, builder, chain.Breakers(), logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("tileserver"))
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("tileserver listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

// purgeLoop evicts stale cached scenes once per interval, and once at
// startup so a long-stopped instance doesn't serve months-old metadata.
func purgeLoop(ctx context.Context, cache *scenecache.Store, logger *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		purged, err := cache.PurgeOlderThan(ctx, maxSceneAge)
		if err != nil {
			logger.Error("scene cache purge failed", "error", err)
		} else if purged > 0 {
			logger.Info("scene cache purged", "scenes", purged)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// breakerGaugeLoop mirrors breaker states into the Prometheus gauge.
func breakerGaugeLoop(ctx context.Context, breakers *providers.BreakerSet) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if observability.Default == nil {
				continue
			}
			for name, state := range breakers.States() {
				observability.Default.BreakerState.WithLabelValues(name).Set(float64(state))
			}
		}
	}
}
