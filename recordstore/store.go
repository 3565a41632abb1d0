// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package recordstore defines the transactional key-ordered record store the
// authoritative side persists into, plus the persisted single-fire alarm
// primitive the synthetic generator is built on. Implementations live in the
// pebblestore and pgstore subpackages.
package recordstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key has no record.
var ErrNotFound = errors.New("recordstore: key not found")

// KV is one key/value pair returned by List.
type KV struct {
	Key   string
	Value []byte
}

// Tx is the write surface inside one atomic update. Reads observe writes
// made earlier in the same transaction.
type Tx interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store is a key-ordered record store with atomic multi-key updates and a
// single persisted alarm. List returns pairs in ascending key order.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]KV, error)

	// Update runs fn inside one transaction. If fn returns an error the
	// whole update is rolled back and that error is returned.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// GetAlarm returns the persisted alarm time, or ok=false if none is set.
	GetAlarm(ctx context.Context) (at time.Time, ok bool, err error)
	// SetAlarm persists the single-fire alarm, replacing any previous one.
	SetAlarm(ctx context.Context, at time.Time) error
	// ClearAlarm removes the alarm if set.
	ClearAlarm(ctx context.Context) error

	Close() error
}
