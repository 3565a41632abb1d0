// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

// Package noteid produces sortable, collision-resistant entry identifiers.
//
// Identifiers are ULIDs: a 48-bit millisecond timestamp prefix so ids sort
// chronologically, plus an 80-bit random suffix so two ids minted in the
// same tick still differ with overwhelming probability.
package noteid

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/codegod100/sqlworker/wire"
)

// Generator mints entry ids. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewGenerator probes the secure random source once at construction and
// fails with wire.ErrInitialization if none is available. ids within one
// millisecond are monotonic per generator.
func NewGenerator() (*Generator, error) {
	probe := make([]byte, 1)
	if _, err := rand.Read(probe); err != nil {
		return nil, fmt.Errorf("%w: no secure random source: %v", wire.ErrInitialization, err)
	}
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Generate returns a new 26-character id.
func (g *Generator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), g.entropy)
	if err != nil {
		return "", fmt.Errorf("mint id: %w", err)
	}
	return id.String(), nil
}
