// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package edge_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codegod100/sqlworker/edge"
	"github.com/codegod100/sqlworker/internal/auth"
	"github.com/codegod100/sqlworker/recordstore/pebblestore"
	"github.com/codegod100/sqlworker/remote"
	"github.com/codegod100/sqlworker/wire"
)

type remoteFixture struct {
	svc    *remote.Service
	server *httptest.Server
	wsURL  string
}

func startRemote(t *testing.T, authenticator *auth.JWTAuth) *remoteFixture {
	t.Helper()
	store, err := pebblestore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := remote.NewService(store, slog.Default())
	require.NoError(t, err)

	server := httptest.NewServer(remote.NewWSServer(svc, authenticator, slog.Default()))
	t.Cleanup(server.Close)

	return &remoteFixture{
		svc:    svc,
		server: server,
		wsURL:  "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func startEdge(t *testing.T, endpoint, token string) *edge.Client {
	t.Helper()
	store, err := edge.OpenLocalStore(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client, err := edge.NewClient(store, &edge.WSDialer{Token: token}, edge.Config{
		Endpoint: endpoint,
		Backoff:  100 * time.Millisecond,
		Logger:   slog.Default(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestEndToEndPushAndSync(t *testing.T) {
	ctx := context.Background()
	fixture := startRemote(t, nil)
	client := startEdge(t, fixture.wsURL, "")

	client.Connect(ctx)
	require.Equal(t, edge.Subscribed, client.State())

	// the remote gains an entry (as if the synthetic generator fired)
	_, err := fixture.svc.SendEntry(ctx, &wire.SendEntryParams{Title: "remote", Content: "pushed"})
	require.NoError(t, err)

	// the push lands in the pending set
	require.Eventually(t, func() bool {
		return client.PendingCount() == 1
	}, 2*time.Second, 20*time.Millisecond)

	before, err := client.Store().Count(ctx)
	require.NoError(t, err)

	require.NoError(t, client.Sync(ctx))
	require.Equal(t, 0, client.PendingCount(), "pending set cleared after sync")

	after, err := client.Store().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after, "sync adds exactly the pushed entry")
}

func TestEndToEndCreateEchoesBackToOriginator(t *testing.T) {
	ctx := context.Background()
	fixture := startRemote(t, nil)
	client := startEdge(t, fixture.wsURL, "")

	client.Connect(ctx)
	entry, err := client.CreateEntry(ctx, "mine", "created on the edge")
	require.NoError(t, err)

	// the fan-out includes the originating edge
	require.Eventually(t, func() bool {
		return client.PendingCount() == 1
	}, 2*time.Second, 20*time.Millisecond)

	remoteEntries, err := fixture.svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Len(t, remoteEntries, 1)
	require.Equal(t, entry.ID, remoteEntries[0].ID, "server kept the client-assigned id")
}

func TestEndToEndTwoEdgesConverge(t *testing.T) {
	ctx := context.Background()
	fixture := startRemote(t, nil)
	edgeA := startEdge(t, fixture.wsURL, "")
	edgeB := startEdge(t, fixture.wsURL, "")

	edgeA.Connect(ctx)
	edgeB.Connect(ctx)

	_, err := edgeA.CreateEntry(ctx, "from A", "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return edgeB.PendingCount() == 1
	}, 2*time.Second, 20*time.Millisecond, "edge B is pushed A's entry")

	require.NoError(t, edgeB.Sync(ctx))
	count, err := edgeB.Store().Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEndToEndServerRestartReconnects(t *testing.T) {
	ctx := context.Background()
	fixture := startRemote(t, nil)
	client := startEdge(t, fixture.wsURL, "")

	client.Connect(ctx)
	require.Equal(t, edge.Subscribed, client.State())

	// kill the server; the client backs off
	fixture.server.CloseClientConnections()

	require.Eventually(t, func() bool {
		return client.State() == edge.Subscribed
	}, 3*time.Second, 20*time.Millisecond, "client renews the subscription after the drop")

	// the renewed subscription still delivers pushes
	_, err := fixture.svc.SendEntry(ctx, &wire.SendEntryParams{Title: "after", Content: "restart"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return client.PendingCount() >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEndToEndAuthRequired(t *testing.T) {
	ctx := context.Background()
	authenticator := auth.NewJWTAuth("test-secret")
	fixture := startRemote(t, authenticator)

	// no token: the handshake is rejected and the client backs off
	anon := startEdge(t, fixture.wsURL, "")
	anon.Connect(ctx)
	require.Equal(t, edge.AwaitingReconnect, anon.State())

	// valid token: subscribed
	token, err := authenticator.GenerateToken("edge-1", time.Hour)
	require.NoError(t, err)
	authed := startEdge(t, fixture.wsURL, token)
	authed.Connect(ctx)
	require.Equal(t, edge.Subscribed, authed.State())
}

func TestEndToEndDeleteEntry(t *testing.T) {
	ctx := context.Background()
	fixture := startRemote(t, nil)
	client := startEdge(t, fixture.wsURL, "")

	client.Connect(ctx)
	entry, err := client.CreateEntry(ctx, "doomed", "to be removed")
	require.NoError(t, err)

	deleted, err := fixture.svc.DeleteEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, entry.ID, deleted)

	remoteEntries, err := fixture.svc.FetchEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, remoteEntries)
}
