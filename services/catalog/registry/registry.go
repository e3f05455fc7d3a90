// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry builds the catalog provider list from a YAML config
// file and keeps it current while the process runs.
//
// There are no package-level provider singletons: the registry is
// constructed once in main and injected into the fallback chain, so tests
// substitute providers through the constructor rather than global resets.
// Priority is the order providers appear in the file.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/pkg/validation"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/providers"
)

// ProviderConfig is one entry in the registry file, highest priority first.
type ProviderConfig struct {
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"` // "stac" or "signed"
	URL         string            `yaml:"url"`
	Collections []string          `yaml:"collections"`
	Collection  map[string]string `yaml:"collection_ids"`
	AssetKeys   map[string]string `yaml:"asset_keys"`
	RateLimit   float64           `yaml:"rate_limit"`

	// Signed-provider fields. The client secret is named indirectly so the
	// registry file stays safe to commit.
	TokenURL        string `yaml:"token_url"`
	ClientID        string `yaml:"client_id"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	SignURL         string `yaml:"sign_url"`
}

// Config is the registry file root.
type Config struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// Registry holds the live provider list. It implements
// providers.ProviderSource, so the fallback chain always sees the latest
// successfully loaded config.
type Registry struct {
	path   string
	client providers.HTTPClient
	logger *slog.Logger

	mu   sync.RWMutex
	list []providers.CatalogProvider
}

// New loads the registry file at path and builds the provider list.
func New(path string, client providers.HTTPClient, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{path: path, client: client, logger: logger}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Providers returns the current priority-ordered provider list.
func (r *Registry) Providers() []providers.CatalogProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list
}

// reload parses the file and swaps the provider list. A broken file leaves
// the previous list in place.
func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}
	list, err := Build(cfg, r.client, r.logger)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.list = list
	r.mu.Unlock()
	r.logger.Info("provider registry loaded", "providers", len(list))
	return nil
}

// Build constructs providers from a parsed config, in file order.
func Build(cfg Config, client providers.HTTPClient, logger *slog.Logger) ([]providers.CatalogProvider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("registry: no providers configured")
	}
	list := make([]providers.CatalogProvider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		if pc.Name == "" || pc.URL == "" {
			return nil, fmt.Errorf("registry: provider entry needs name and url")
		}
		if err := validation.ValidateIdentifier(pc.Name); err != nil {
			return nil, fmt.Errorf("registry: provider name: %w", err)
		}
		if err := validation.ValidateIdentifiers(pc.Collections); err != nil {
			return nil, fmt.Errorf("registry: provider %s collections: %w", pc.Name, err)
		}
		for _, canonical := range pc.AssetKeys {
			if !datatypes.CanonicalBands[canonical] {
				return nil, fmt.Errorf("registry: provider %s maps asset to unknown band %q", pc.Name, canonical)
			}
		}
		stacCfg := providers.StacConfig{
			Name:          pc.Name,
			BaseURL:       pc.URL,
			Collections:   pc.Collections,
			CollectionIDs: pc.Collection,
			AssetKeys:     pc.AssetKeys,
			RateLimit:     pc.RateLimit,
		}
		switch pc.Type {
		case "", "stac":
			list = append(list, providers.NewStacProvider(stacCfg, client, logger))
		case "signed":
			secret := os.Getenv(pc.ClientSecretEnv)
			if pc.ClientSecretEnv != "" && secret == "" {
				logger.Warn("client secret env var is empty", "provider", pc.Name, "env", pc.ClientSecretEnv)
			}
			// Seal the secret in locked memory; providers open it only for
			// the duration of a token exchange.
			var sealed *memguard.Enclave
			if secret != "" {
				sealed = memguard.NewEnclave([]byte(secret))
			}
			list = append(list, providers.NewSignedProvider(providers.SignedConfig{
				Stac:         stacCfg,
				TokenURL:     pc.TokenURL,
				ClientID:     pc.ClientID,
				ClientSecret: sealed,
				SignURL:      pc.SignURL,
			}, client, logger))
		default:
			return nil, fmt.Errorf("registry: provider %s has unknown type %q", pc.Name, pc.Type)
		}
	}
	return list, nil
}

// Watch reloads the registry whenever the file changes, until ctx is done.
// Editors and config mounts replace files rather than writing in place, so
// create/rename events re-add the watch. Reload failures keep serving the
// last good list.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("registry: start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.path); err != nil {
		return fmt.Errorf("registry: watch %s: %w", r.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Atomic replaces deliver rename/remove; give the new file a
			// moment to land, then re-add the watch.
			time.Sleep(100 * time.Millisecond)
			if err := watcher.Add(r.path); err != nil {
				r.logger.Error("registry re-watch failed, hot reload disabled", "path", r.path, "error", err)
			}
			if err := r.reload(); err != nil {
				r.logger.Error("registry reload failed, keeping previous providers", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("registry watcher error", "error", err)
		}
	}
}
