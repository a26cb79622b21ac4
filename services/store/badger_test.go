// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	bs, err := NewBadgerStore(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	bs := newTestBadgerStore(t)

	_, err := bs.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	want := testRecord()
	require.NoError(t, bs.Save(context.Background(), want))

	got, err := bs.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestBadgerStoreSaveOverwrites(t *testing.T) {
	bs := newTestBadgerStore(t)
	require.NoError(t, bs.Save(context.Background(), testRecord()))

	updated := testRecord()
	updated.Threshold = 75
	updated.Selected = []string{"en"}
	require.NoError(t, bs.Save(context.Background(), updated))

	got, err := bs.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, updated, got)
}

func TestBadgerStoreWatchSignalsOnSave(t *testing.T) {
	bs := newTestBadgerStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bs.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, bs.Save(context.Background(), testRecord()))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("no watch signal after save")
	}

	cancel()
	select {
	case _, open := <-ch:
		require.False(t, open, "channel closes after cancellation")
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}
