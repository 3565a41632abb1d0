// Copyright 2026 codegod100
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"strings"
	"time"
)

// MaxFieldLen is the maximum length accepted for entry title and content.
const MaxFieldLen = 2048

// Entry is a single note record. ID and CreatedAt are assigned by the
// authoritative store when absent and are immutable afterwards.
type Entry struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateFields checks title and content against the boundary rules.
// It does not inspect ID or CreatedAt since both may legitimately be
// unset on the way in.
func (e *Entry) ValidateFields() error {
	if err := validateField("title", e.Title); err != nil {
		return err
	}
	return validateField("content", e.Content)
}

// ValidateID rejects ids that are empty after trimming or implausibly long.
// Used on the receiving side of both RPC calls and push notifications.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return NewValidationError("id", "must be a non-empty string")
	}
	if len(id) > 128 {
		return NewValidationError("id", fmt.Sprintf("too long: %d > 128", len(id)))
	}
	return nil
}

func validateField(name, value string) error {
	if value == "" {
		return NewValidationError(name, "must be a non-empty string")
	}
	if len(value) > MaxFieldLen {
		return NewValidationError(name, fmt.Sprintf("too long: %d > %d", len(value), MaxFieldLen))
	}
	return nil
}
