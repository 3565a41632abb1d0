// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codegod100/sqlworker/recordstore/pebblestore"
)

func countEntries(t *testing.T, svc *Service) int {
	t.Helper()
	entries, err := svc.FetchEntries(context.Background())
	require.NoError(t, err)
	return len(entries)
}

func TestGeneratorArmsAlarmOnFirstStart(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(ctx))
	defer gen.Stop()

	// no alarm was pending, so nothing fires immediately
	require.Equal(t, 0, countEntries(t, svc))

	at, ok, err := svc.store.GetAlarm(ctx)
	require.NoError(t, err)
	require.True(t, ok, "alarm must be armed")
	require.True(t, at.After(time.Now()), "alarm must be in the future")
}

func TestGeneratorCatchUpFiringAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := pebblestore.Open(dir)
	require.NoError(t, err)
	svc, err := NewService(store, slog.Default())
	require.NoError(t, err)

	// simulate a previous process whose alarm came due while it was down
	require.NoError(t, store.SetAlarm(ctx, time.Now().Add(-time.Minute)))

	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(ctx))
	gen.Stop()

	require.Equal(t, 1, countEntries(t, svc), "exactly one catch-up firing")

	// a second restart with the alarm now in the future fires nothing
	gen2 := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen2.Start(ctx))
	gen2.Stop()
	require.Equal(t, 1, countEntries(t, svc))

	require.NoError(t, store.Close())
}

func TestGeneratorFuturePendingAlarmDoesNotFire(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.store.SetAlarm(ctx, time.Now().Add(time.Hour)))

	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(ctx))
	defer gen.Stop()

	require.Equal(t, 0, countEntries(t, svc))
}

func TestGeneratorFiresPeriodically(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	gen := NewGenerator(svc, 40*time.Millisecond, slog.Default())
	require.NoError(t, gen.Start(ctx))
	defer gen.Stop()

	require.Eventually(t, func() bool {
		return countEntries(t, svc) >= 2
	}, 2*time.Second, 20*time.Millisecond, "generator must keep firing and re-arming")
}

func TestGeneratorFiringNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	l := &testListener{}
	_, err := svc.SubscribeUpdates(l)
	require.NoError(t, err)

	require.NoError(t, svc.store.SetAlarm(ctx, time.Now().Add(-time.Second)))
	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(ctx))
	defer gen.Stop()

	require.Equal(t, int64(1), l.notified.Load(), "catch-up goes through the normal insert+notify path")
}

func TestGeneratorStopIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(context.Background()))
	gen.Stop()
	gen.Stop()
}

func TestGeneratorStartIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	gen := NewGenerator(svc, time.Hour, slog.Default())
	require.NoError(t, gen.Start(context.Background()))
	require.NoError(t, gen.Start(context.Background()))
	gen.Stop()
}
