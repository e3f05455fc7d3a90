// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scenecache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/bomyoungkim-gmail/vivacampo-app-sub002/services/catalog/datatypes"
)

// QueryLimit caps scenes returned by a cache query.
const QueryLimit = 200

// keyPrefix namespaces scene entries so other data can share the DB later.
const keyPrefix = "scene/"

// Store is the badger-backed scene metadata cache.
//
// Keys are "scene/<collection>/<acquired_at RFC3339>/<provider>/<id>", so a
// collection prefix scan walks scenes in acquisition order and the
// composite (id, provider) identity falls out of the key itself. Values
// are the JSON-encoded scene.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates (or reopens) the store at cfg.Path.
func Open(cfg Config) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sceneKey(scene datatypes.Scene) []byte {
	return []byte(fmt.Sprintf("%s%s/%s/%s/%s",
		keyPrefix, scene.Collection,
		scene.AcquiredAt.UTC().Format(time.RFC3339),
		scene.Provider, scene.ID))
}

// Upsert writes a search result batch in one transaction. Conflict policy
// is last write wins: a scene re-fetched from the same provider replaces
// its previous assets and fetched_at wholesale.
func (s *Store) Upsert(ctx context.Context, scenes []datatypes.Scene, collection, provider string) error {
	if len(scenes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, scene := range scenes {
			if scene.Collection == "" {
				scene.Collection = collection
			}
			if scene.Provider == "" {
				scene.Provider = provider
			}
			value, err := json.Marshal(scene)
			if err != nil {
				return fmt.Errorf("marshal scene %s: %w", scene.ID, err)
			}
			if err := txn.Set(sceneKey(scene), value); err != nil {
				return fmt.Errorf("set scene %s: %w", scene.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scenecache: upsert %d scenes: %w", len(scenes), err)
	}
	s.logger.Debug("cached scenes", "count", len(scenes), "collection", collection, "provider", provider)
	return nil
}

// Query returns cached scenes overlapping the spatio-temporal window,
// newest first, capped at QueryLimit. It is only consulted after the whole
// provider chain has failed, so results may be stale; callers must flag
// them as cached.
func (s *Store) Query(ctx context.Context, collection string, start, end time.Time, bbox datatypes.BoundingBox, maxCloudCover *float64) ([]datatypes.Scene, error) {
	prefix := []byte(keyPrefix + collection + "/")
	seek := []byte(keyPrefix + collection + "/" + start.UTC().Format(time.RFC3339))

	var scenes []datatypes.Scene
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var scene datatypes.Scene
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &scene)
			}); err != nil {
				s.logger.Warn("skipping undecodable cache entry", "key", string(it.Item().Key()), "error", err)
				continue
			}
			if scene.AcquiredAt.After(end) {
				break // keys are acquisition-ordered within the collection
			}
			if !scene.BBox.Intersects(bbox) {
				continue
			}
			if maxCloudCover != nil && scene.CloudCover != nil && *scene.CloudCover > *maxCloudCover {
				continue
			}
			scenes = append(scenes, scene)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scenecache: query %s: %w", collection, err)
	}

	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].AcquiredAt.After(scenes[j].AcquiredAt)
	})
	if len(scenes) > QueryLimit {
		scenes = scenes[:QueryLimit]
	}
	return scenes, nil
}

// PurgeOlderThan deletes every scene fetched more than maxAge ago. Run on
// a schedule, never on the request path.
func (s *Store) PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	var stale [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix([]byte(keyPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var scene datatypes.Scene
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &scene)
			}); err != nil {
				// Undecodable entries are purged too.
				stale = append(stale, it.Item().KeyCopy(nil))
				continue
			}
			if scene.FetchedAt.Before(cutoff) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scenecache: purge scan: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("scenecache: purge delete: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("scenecache: purge flush: %w", err)
	}
	if len(stale) > 0 {
		s.logger.Info("purged stale scenes", "count", len(stale), "max_age", maxAge.String())
	}
	return len(stale), nil
}
