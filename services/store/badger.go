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
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"

	"github.com/AleutianAI/threadlens/services/filter"
)

// settingsKey is the single key the record lives under. Versioned so a
// future incompatible format can coexist during migration.
var settingsKey = []byte("settings/v1")

// BadgerConfig holds configuration for the embedded BadgerDB backend.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory skips disk persistence. Useful for testing.
	InMemory bool

	// SyncWrites trades write latency for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. If nil, that
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps the settings record in an embedded BadgerDB.
// Change notification rides on the database's own subscription stream,
// so writes from any handle on the same DB are observed, not just
// external processes.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore opens (or creates) the database per cfg.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func (bs *BadgerStore) Load(_ context.Context) (*filter.Record, error) {
	var rec filter.Record
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings record: %w", err)
	}
	return &rec, nil
}

func (bs *BadgerStore) Save(_ context.Context, rec *filter.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode settings record: %w", err)
	}
	err = bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(settingsKey, data)
	})
	if err != nil {
		return fmt.Errorf("save settings record: %w", err)
	}
	return nil
}

// Watch signals on every committed write of the settings key until ctx
// is cancelled.
func (bs *BadgerStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		match := []pb.Match{{Prefix: settingsKey}}
		err := bs.db.Subscribe(ctx, func(_ *badger.KVList) error {
			select {
			case ch <- struct{}{}:
			default:
			}
			return nil
		}, match)
		if err != nil && !errors.Is(err, context.Canceled) {
			bs.logger.Warn("settings subscription ended", "error", err)
		}
	}()
	return ch, nil
}

func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}
