// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists the filter settings record and notifies the
// engine when another writer changes it. Two backends exist: a plain
// JSON file watched through fsnotify, and an embedded BadgerDB keyed
// store using its native subscription stream.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/threadlens/services/filter"
)

// ErrNotFound reports that no settings record has been saved yet.
// Callers fall back to defaults; it is not a failure.
var ErrNotFound = errors.New("store: settings record not found")

// Store is the persistence boundary for the settings record.
//
// Watch delivers one signal per observed external change until ctx is
// cancelled; the channel is closed afterwards. Signals are
// level-triggered with no payload: the receiver re-Loads and diffs.
// A backend may also signal for the process's own writes.
type Store interface {
	Load(ctx context.Context) (*filter.Record, error)
	Save(ctx context.Context, rec *filter.Record) error
	Watch(ctx context.Context) (<-chan struct{}, error)
	Close() error
}
