// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codegod100/sqlworker/wire"
)

// Sync reconciles the local mirror with the remote store: fetch the full
// remote set, merge it into SQLite inside one transaction with
// last-write-wins upserts, then clear the pending set.
//
// Sync is best-effort about connectivity: with no subscription it attempts
// one reconnect, and if the remote is still unavailable it logs and
// returns nil. Only a failure in the transactional merge phase is surfaced
// to the caller, as a ReconciliationError after a full rollback.
func (c *Client) Sync(ctx context.Context) error {
	link, gen := c.currentSession()
	if link == nil {
		c.Connect(ctx)
		link, gen = c.currentSession()
		if link == nil {
			c.logger.Info("sync skipped: remote unavailable")
			return nil
		}
	}

	var result wire.FetchEntriesResult
	if err := link.Call(ctx, wire.MethodFetchEntries, struct{}{}, &result); err != nil {
		if errors.Is(err, wire.ErrTransport) {
			c.failSession(link, gen, err)
		}
		c.logger.Warn("sync fetch failed", "error", err)
		return nil
	}

	if err := c.mergeRemote(ctx, result.Entries); err != nil {
		return &wire.ReconciliationError{Cause: err}
	}

	c.mu.Lock()
	c.pending = make(map[string]*wire.Entry)
	c.mu.Unlock()

	c.logger.Debug("sync complete", "remote_entries", len(result.Entries))
	return nil
}

// mergeRemote applies the fetched batch inside one transaction. Any
// failure rolls the whole batch back; no partial merge is observable.
func (c *Client) mergeRemote(ctx context.Context, entries []*wire.Entry) error {
	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if entry == nil || strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("remote entry missing id")
		}
		if err := upsertInTx(ctx, tx, entry); err != nil {
			return fmt.Errorf("upsert entry %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}
