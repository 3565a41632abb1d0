// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codegod100/sqlworker/wire"
)

func TestOpenLocalStoreMigratesFromScratch(t *testing.T) {
	store, err := OpenLocalStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	var version int
	err = store.db.QueryRow(`SELECT version FROM schema_info`).Scan(&version)
	require.NoError(t, err)
	require.Equal(t, len(migrations), version)
}

func TestMigrationIsIdempotentAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.db")

	store, err := OpenLocalStore(path, slog.Default())
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), &wire.Entry{
		ID: "a", Title: "t", Content: "c", CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := OpenLocalStore(path, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count, "existing data survives a re-migration check")
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	store, err := OpenLocalStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	entry := &wire.Entry{ID: "a", Title: "t", Content: "c", CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Insert(context.Background(), entry))
	require.Error(t, store.Insert(context.Background(), entry), "id is unique in the mirror")
}

func TestGetRoundTripsTimestamps(t *testing.T) {
	store, err := OpenLocalStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2026, 8, 28, 10, 30, 0, 123456000, time.UTC)
	require.NoError(t, store.Insert(context.Background(), &wire.Entry{
		ID: "a", Title: "t", Content: "c", CreatedAt: at,
	}))

	got, err := store.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, got.CreatedAt.Equal(at))

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store, err := OpenLocalStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Insert(context.Background(), &wire.Entry{
			ID: id, Title: "t", Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "c", entries[0].ID)
	require.Equal(t, "a", entries[2].ID)
}
