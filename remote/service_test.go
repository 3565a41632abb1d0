// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codegod100/sqlworker/recordstore/pebblestore"
	"github.com/codegod100/sqlworker/wire"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := pebblestore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := NewService(store, slog.Default())
	require.NoError(t, err)
	return svc
}

func TestSendEntryAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		entry, err := svc.SendEntry(ctx, &wire.SendEntryParams{Title: "t", Content: "c"})
		require.NoError(t, err)
		require.NotEmpty(t, entry.ID)
		require.False(t, entry.CreatedAt.IsZero())
		require.False(t, seen[entry.ID], "duplicate id %s", entry.ID)
		seen[entry.ID] = true
	}
}

func TestSendEntryValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	cases := []struct {
		name   string
		params wire.SendEntryParams
	}{
		{"empty title", wire.SendEntryParams{Title: "", Content: "c"}},
		{"empty content", wire.SendEntryParams{Title: "t", Content: ""}},
		{"oversized title", wire.SendEntryParams{Title: strings.Repeat("x", 2049), Content: "c"}},
		{"oversized content", wire.SendEntryParams{Title: "t", Content: strings.Repeat("x", 2049)}},
		{"blank id", wire.SendEntryParams{ID: "   ", Title: "t", Content: "c"}},
		{"bad created_at", wire.SendEntryParams{Title: "t", Content: "c", CreatedAt: "yesterday"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SendEntry(ctx, &tc.params)
			require.Error(t, err)
			require.True(t, wire.IsValidation(err), "want validation error, got %v", err)
		})
	}

	// nothing was persisted by the rejected calls
	entries, err := svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSendEntryBoundaryLength(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.SendEntry(ctx, &wire.SendEntryParams{
		Title:   strings.Repeat("x", 2048),
		Content: strings.Repeat("y", 2048),
	})
	require.NoError(t, err)
}

func TestSendEntrySameIDOverwrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	first, err := svc.SendEntry(ctx, &wire.SendEntryParams{ID: "fixed", Title: "old", Content: "old"})
	require.NoError(t, err)

	_, err = svc.SendEntry(ctx, &wire.SendEntryParams{
		ID: "fixed", Title: "new", Content: "new",
		CreatedAt: first.CreatedAt.Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	entries, err := svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "new", entries[0].Title)
	require.Equal(t, "new", entries[0].Content)
}

func TestFetchEntriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		_, err := svc.SendEntry(ctx, &wire.SendEntryParams{
			Title:     "t",
			Content:   "c",
			CreatedAt: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
		})
		require.NoError(t, err)
	}

	entries, err := svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		require.True(t, !entries[i-1].CreatedAt.Before(entries[i].CreatedAt),
			"entries must be ordered newest first")
	}
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	entry, err := svc.SendEntry(ctx, &wire.SendEntryParams{Title: "t", Content: "c"})
	require.NoError(t, err)

	deleted, err := svc.DeleteEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, deleted)

	entries, err := svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)

	_, err = svc.DeleteEntry(ctx, "")
	require.Error(t, err)
	require.True(t, wire.IsValidation(err))
}

func TestSendEntryNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	l := &testListener{}
	sub, err := svc.SubscribeUpdates(l)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	entry, err := svc.SendEntry(ctx, &wire.SendEntryParams{Title: "t", Content: "c"})
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, int64(1), l.notified.Load())
}

func TestNotifyFailureNeverFailsInsert(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	l := &testListener{fail: true}
	_, err := svc.SubscribeUpdates(l)
	require.NoError(t, err)

	entry, err := svc.SendEntry(ctx, &wire.SendEntryParams{Title: "t", Content: "c"})
	require.NoError(t, err, "a delivery failure must not surface to the inserter")

	// the insert stuck even though the only listener failed
	entries, err := svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, entry.ID, entries[0].ID)
	require.Equal(t, 0, svc.Hub().Len(), "failing listener is evicted")
}
