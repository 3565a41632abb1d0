// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package edge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codegod100/sqlworker/wire"
)

// ErrEntryNotFound is returned by LocalStore.Get for an unknown id.
var ErrEntryNotFound = errors.New("edge: entry not found")

// migrations are applied in order; schema_info.version records the last
// applied step. All pending steps run inside one transaction, so a failed
// upgrade leaves the previous schema intact.
var migrations = []string{
	// v1: base entry table
	`CREATE TABLE entry (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	// v2: listing is always newest-first
	`CREATE INDEX idx_entry_created_at ON entry (created_at DESC)`,
}

// LocalStore is the SQLite mirror on the edge. All multi-row writes are
// serialized through transactions; SQLite gives us the exclusive section
// the merge needs.
type LocalStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenLocalStore opens (or creates) the mirror database at path and brings
// the schema up to date. Use ":memory:" for an ephemeral store.
func OpenLocalStore(path string, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	// a single connection keeps transactions from fighting over the file
	db.SetMaxOpenConns(1)

	store := &LocalStore{db: db, logger: logger}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *LocalStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle for the reconciler's transaction.
func (s *LocalStore) DB() *sql.DB { return s.db }

// migrate detects the on-disk schema version and applies the pending steps
// inside one transaction, rolling everything back on the first failure.
func (s *LocalStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL)
	`); err != nil {
		return fmt.Errorf("create schema_info: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_info`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (0)`); err != nil {
			return fmt.Errorf("seed schema_info: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for step := version; step < len(migrations); step++ {
		if _, err := tx.ExecContext(ctx, migrations[step]); err != nil {
			return fmt.Errorf("migration step %d: %w", step+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schema_info SET version = ?`, len(migrations)); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}

	s.logger.Debug("local schema migrated", "from", version, "to", len(migrations))
	return nil
}

// Insert stores a new entry. Duplicate ids are an error; the id invariant
// belongs to the caller.
func (s *LocalStore) Insert(ctx context.Context, entry *wire.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entry (id, title, content, created_at) VALUES (?, ?, ?, ?)
	`, entry.ID, entry.Title, entry.Content, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert entry %s: %w", entry.ID, err)
	}
	return nil
}

// Get fetches one entry by id.
func (s *LocalStore) Get(ctx context.Context, id string) (*wire.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, created_at FROM entry WHERE id = ?
	`, id)
	return scanEntry(row)
}

// List returns all local entries ordered by creation time, newest first.
func (s *LocalStore) List(ctx context.Context) ([]*wire.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, created_at FROM entry
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*wire.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Count returns the number of mirrored entries.
func (s *LocalStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entry`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// upsertInTx applies one remote entry inside the merge transaction with
// last-write-wins semantics on the value fields.
func upsertInTx(ctx context.Context, tx *sql.Tx, entry *wire.Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO entry (id, title, content, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title      = excluded.title,
			content    = excluded.content,
			created_at = excluded.created_at
	`, entry.ID, entry.Title, entry.Content, entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*wire.Entry, error) {
	var entry wire.Entry
	var createdAt string
	if err := row.Scan(&entry.ID, &entry.Title, &entry.Content, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", entry.ID, err)
	}
	entry.CreatedAt = at
	return &entry, nil
}
