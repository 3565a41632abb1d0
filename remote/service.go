// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the authoritative side of the sync node: the
// entry store of record, the notification hub that pushes new entries to
// subscribed edges, and the periodic synthetic generator.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/codegod100/sqlworker/internal/auth"
	"github.com/codegod100/sqlworker/noteid"
	"github.com/codegod100/sqlworker/recordstore"
	"github.com/codegod100/sqlworker/wire"
)

const entryKeyPrefix = "entry:"

// Service is the authoritative entry store. Writes go through the record
// store transactionally; every successful insert fans out through the hub.
type Service struct {
	store  recordstore.Store
	hub    *Hub
	ids    *noteid.Generator
	logger *slog.Logger
}

// NewService wires the store of record to a fresh hub.
func NewService(store recordstore.Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ids, err := noteid.NewGenerator()
	if err != nil {
		return nil, err
	}
	return &Service{
		store:  store,
		hub:    NewHub(logger),
		ids:    ids,
		logger: logger,
	}, nil
}

// Hub exposes the notification hub for subscription management.
func (s *Service) Hub() *Hub { return s.hub }

// SendEntry validates and persists an entry, assigning id and creation
// time when the client did not provide them, then notifies every
// subscribed listener. Persist and fan-out are deliberately not atomic:
// a delivery failure never unwinds the insert.
func (s *Service) SendEntry(ctx context.Context, params *wire.SendEntryParams) (*wire.Entry, error) {
	entry := &wire.Entry{
		Title:   params.Title,
		Content: params.Content,
	}
	if err := entry.ValidateFields(); err != nil {
		return nil, err
	}

	if params.ID != "" {
		if err := wire.ValidateID(params.ID); err != nil {
			return nil, err
		}
		entry.ID = params.ID
	} else {
		id, err := s.ids.Generate()
		if err != nil {
			return nil, fmt.Errorf("assign entry id: %w", err)
		}
		entry.ID = id
	}

	if params.CreatedAt != "" {
		at, err := time.Parse(time.RFC3339Nano, params.CreatedAt)
		if err != nil {
			return nil, wire.NewValidationError("created_at", "must be RFC 3339")
		}
		entry.CreatedAt = at.UTC()
	} else {
		entry.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	err = s.store.Update(ctx, func(tx recordstore.Tx) error {
		return tx.Put(entryKeyPrefix+entry.ID, raw)
	})
	if err != nil {
		return nil, fmt.Errorf("persist entry %s: %w", entry.ID, err)
	}

	sourceID, _ := auth.SourceID(ctx)
	s.logger.Debug("entry persisted", "id", entry.ID, "source_id", sourceID)

	s.hub.NotifyAll(ctx, entry)
	return entry, nil
}

// FetchEntries returns the full authoritative set ordered by creation
// time, newest first.
func (s *Service) FetchEntries(ctx context.Context) ([]*wire.Entry, error) {
	kvs, err := s.store.List(ctx, entryKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]*wire.Entry, 0, len(kvs))
	for _, kv := range kvs {
		var entry wire.Entry
		if err := json.Unmarshal(kv.Value, &entry); err != nil {
			return nil, fmt.Errorf("decode entry at %q: %w", kv.Key, err)
		}
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
	return entries, nil
}

// DeleteEntry removes an entry and echoes the deleted id. Deleting an
// absent id is not an error.
func (s *Service) DeleteEntry(ctx context.Context, id string) (string, error) {
	if err := wire.ValidateID(id); err != nil {
		return "", err
	}
	err := s.store.Update(ctx, func(tx recordstore.Tx) error {
		return tx.Delete(entryKeyPrefix + id)
	})
	if err != nil {
		return "", fmt.Errorf("delete entry %s: %w", id, err)
	}
	return id, nil
}

// SubscribeUpdates registers a listener capability with the hub.
func (s *Service) SubscribeUpdates(listener Listener) (*Subscription, error) {
	return s.hub.Register(listener)
}
