// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package pgstore backs the record store with PostgreSQL for deployments
// where the authoritative node runs against a shared database instead of
// an embedded one. Keys stay ordered through the primary key index.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codegod100/sqlworker/recordstore"
)

// Store implements recordstore.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New initializes the schema on the given pool and returns the store.
// The pool lifecycle stays with the caller.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS record_kv (
				key   TEXT PRIMARY KEY,
				value BYTEA NOT NULL
			)`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS record_alarm (
				id      INT PRIMARY KEY CHECK (id = 1),
				fire_at TIMESTAMPTZ NOT NULL
			)`)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("initialize pgstore schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error { return nil }

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM record_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recordstore.ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO record_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM record_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]recordstore.KV, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT key, value FROM record_kv
		WHERE key >= $1 AND key < $1 || chr(1114111)
		ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []recordstore.KV
	for rows.Next() {
		var kv recordstore.KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, fn func(tx recordstore.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{ctx: ctx, tx: tx})
	})
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) Get(key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRow(t.ctx, `SELECT value FROM record_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recordstore.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (t *pgTx) Put(key string, value []byte) error {
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO record_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (t *pgTx) Delete(key string) error {
	_, err := t.tx.Exec(t.ctx, `DELETE FROM record_kv WHERE key = $1`, key)
	return err
}

func (s *Store) GetAlarm(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx, `SELECT fire_at FROM record_alarm WHERE id = 1`).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get alarm: %w", err)
	}
	return at, true, nil
}

func (s *Store) SetAlarm(ctx context.Context, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO record_alarm (id, fire_at) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET fire_at = EXCLUDED.fire_at`, at)
	if err != nil {
		return fmt.Errorf("set alarm: %w", err)
	}
	return nil
}

func (s *Store) ClearAlarm(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM record_alarm WHERE id = 1`); err != nil {
		return fmt.Errorf("clear alarm: %w", err)
	}
	return nil
}
