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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrManifestNotFound is returned when no manifest exists under a name.
var ErrManifestNotFound = errors.New("mosaic: manifest not found")

// Store reads and writes manifests by name. Put replaces any existing
// manifest under the same name, which is what makes rebuilds idempotent.
type Store interface {
	Put(ctx context.Context, m *Manifest) error
	Get(ctx context.Context, name string) (*Manifest, error)
}

// ---------------------------------------------------------------------------
// GCS-backed store
// ---------------------------------------------------------------------------

// GCSStore keeps manifests as JSON objects under manifests/<name>.json in
// one bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore creates a store over the given bucket. saKeyPath optionally
// points at a service account key; empty uses ambient credentials.
func NewGCSStore(ctx context.Context, bucket, saKeyPath string) (*GCSStore, error) {
	var opts []option.ClientOption
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func manifestObject(name string) string {
	return "manifests/" + name + ".json"
}

// Put uploads the manifest, replacing any previous version.
func (s *GCSStore) Put(ctx context.Context, m *Manifest) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest %s: %w", m.Name, err)
	}

	obj := s.client.Bucket(s.bucket).Object(manifestObject(m.Name))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	// Tiles cache on the manifest name; the object itself must revalidate.
	w.CacheControl = "no-cache"

	if _, err := w.Write(payload); err != nil {
		w.Close()
		return fmt.Errorf("write manifest %s to gs://%s: %w", m.Name, s.bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for manifest %s: %w", m.Name, err)
	}
	return nil
}

// Get downloads and decodes the manifest.
func (s *GCSStore) Get(ctx context.Context, name string) (*Manifest, error) {
	r, err := s.client.Bucket(s.bucket).Object(manifestObject(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, name)
		}
		return nil, fmt.Errorf("open manifest %s from gs://%s: %w", name, s.bucket, err)
	}
	defer r.Close()
	return decodeManifest(r, name)
}

// ---------------------------------------------------------------------------
// Filesystem-backed store (local development and tests)
// ---------------------------------------------------------------------------

// FileStore keeps manifests as JSON files under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create manifest directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	// Manifest names come from collection + week bucket; keep path traversal out anyway.
	return filepath.Join(s.dir, strings.ReplaceAll(name, string(filepath.Separator), "_")+".json")
}

// Put writes atomically via a temp file rename so readers never observe a
// half-written manifest.
func (s *FileStore) Put(ctx context.Context, m *Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest %s: %w", m.Name, err)
	}
	tmp := s.path(m.Name) + ".tmp"
	if err := os.WriteFile(tmp, payload, 0640); err != nil {
		return fmt.Errorf("write manifest %s: %w", m.Name, err)
	}
	if err := os.Rename(tmp, s.path(m.Name)); err != nil {
		return fmt.Errorf("replace manifest %s: %w", m.Name, err)
	}
	return nil
}

// Get reads and decodes the manifest file.
func (s *FileStore) Get(ctx context.Context, name string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, name)
		}
		return nil, fmt.Errorf("open manifest %s: %w", name, err)
	}
	defer f.Close()
	return decodeManifest(f, name)
}

func decodeManifest(r io.Reader, name string) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", name, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("manifest %s has format version %d, want %d", name, m.FormatVersion, FormatVersion)
	}
	return &m, nil
}
