// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/threadlens/services/filter"
)

// FileStore keeps the settings record as one pretty-printed JSON file.
// Saves go through a temp file and rename so a concurrent reader never
// observes a torn write. External edits surface through an fsnotify
// watch on the containing directory.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a store backed by the file at path. The parent
// directory is created if missing; the file itself is not, so the
// first Load of a fresh store reports ErrNotFound.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create settings directory: %w", err)
	}
	return &FileStore{path: path, logger: logger}, nil
}

func (fs *FileStore) Load(_ context.Context) (*filter.Record, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	var rec filter.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", fs.path, err)
	}
	return &rec, nil
}

func (fs *FileStore) Save(_ context.Context, rec *filter.Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings record: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close settings file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

// Watch signals whenever the settings file is created, written, or
// renamed into place. The directory is watched rather than the file so
// atomic replacement (the same trick Save uses) is not missed.
func (fs *FileStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create settings watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != fs.path {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default: // a signal is already pending
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				fs.logger.Warn("settings watcher error", "error", err)
			}
		}
	}()
	return ch, nil
}

func (fs *FileStore) Close() error {
	return nil
}
