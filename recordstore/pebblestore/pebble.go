// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package pebblestore backs the record store with an embedded Pebble
// database. Pebble keeps keys in order, so prefix listing is a bounded
// iterator scan and no secondary index is needed.
package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/codegod100/sqlworker/recordstore"
)

// alarmKey sits below all printable-prefix record keys.
const alarmKey = "\x00alarm"

// Store implements recordstore.Store on a Pebble database.
type Store struct {
	db *pebble.DB
}

// Open creates or opens the Pebble database at dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("pebblestore: dir is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, recordstore.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := s.db.Set([]byte(key), value, pebble.Sync); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]recordstore.KV, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer iter.Close()

	var out []recordstore.KV
	for iter.First(); iter.Valid(); iter.Next() {
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		out = append(out, recordstore.KV{Key: string(iter.Key()), Value: value})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return out, nil
}

// Update runs fn against an indexed batch so reads inside the transaction
// observe its own writes, then commits atomically with WAL sync.
func (s *Store) Update(ctx context.Context, fn func(tx recordstore.Tx) error) error {
	batch := s.db.NewIndexedBatch()
	defer batch.Close()

	if err := fn(&batchTx{batch: batch}); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

type batchTx struct {
	batch *pebble.Batch
}

func (t *batchTx) Get(key string) ([]byte, error) {
	value, closer, err := t.batch.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, recordstore.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (t *batchTx) Put(key string, value []byte) error {
	return t.batch.Set([]byte(key), value, nil)
}

func (t *batchTx) Delete(key string) error {
	return t.batch.Delete([]byte(key), nil)
}

func (s *Store) GetAlarm(ctx context.Context) (time.Time, bool, error) {
	raw, err := s.Get(ctx, alarmKey)
	if errors.Is(err, recordstore.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse alarm: %w", err)
	}
	return at, true, nil
}

func (s *Store) SetAlarm(ctx context.Context, at time.Time) error {
	return s.Put(ctx, alarmKey, []byte(at.UTC().Format(time.RFC3339Nano)))
}

func (s *Store) ClearAlarm(ctx context.Context) error {
	return s.Delete(ctx, alarmKey)
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil // prefix is all 0xff, scan to the end
}
